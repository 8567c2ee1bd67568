package config

// defaults are the built-in parameter templates. Parameters the pipeline
// cannot guess (db, wui_files, tool locations) have no entry here and must
// come from the parameter file.
var defaults = map[string]string{
	"eppic_db":            "eppic3_${db}",
	"uniprot_db":          "uniprot_${db}",
	"db_host":             "localhost",
	"eppic_cli_conf_file": "./eppic_cli_${db}.conf",
	"eppic_source_dir":    ".",
	"eppic_version":       "3.0-SNAPSHOT",
	"eppic_cli_jar":       "${eppic_source_dir}/eppic-cli/target/uber-eppic-cli-${eppic_version}.jar",
	"eppic_db_jar":        "${eppic_source_dir}/eppic-dbtools/target/uber-eppic-dbtools-${eppic_version}.jar",
	"local_cif_dir":       "",
	"sifts_file":          "${blast_db_dir}/pdb_chain_uniprot.lst",
	"java":                "java",
	"java_opts":           "-Xmx3g -Xmn1g",

	"db_user":          "",
	"db_password":      "",
	"db_root_user":     "",
	"db_root_password": "",
}

// Defaults returns a fresh Raw populated with the built-in defaults.
func Defaults() Raw {
	raw := make(Raw, len(defaults))
	for name, tmpl := range defaults {
		if err := raw.SetString(name, tmpl); err != nil {
			// The table above is static, so this is a programmer error.
			panic(err)
		}
	}
	return raw
}
