// Package app contains the core application logic. It wires configuration,
// the config file and jar prerequisites, the chosen executor and the batch
// driver into one run, decoupled from any specific entrypoint like a CLI.
package app
