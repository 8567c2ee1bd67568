package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/eppicbatch/internal/testutil"
	"github.com/specialistvlad/eppicbatch/internal/workunit"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

const clusterBlock = `
cluster {
  namespace     = "eppic"
  image         = "eppic/eppic-cli:3.0"
  claim         = "eppic-data"
  mount_path    = "%s"
  poll_interval = "1ms"
}
`

// SetupClusterAppTest is SetupAppTest for cluster mode: work units become
// Jobs on a fake clientset that finish with the given condition.
func SetupClusterAppTest(t *testing.T, mountPath string, condition batchv1.JobConditionType, ids ...string) (*App, *testutil.SafeBuffer, *fake.Clientset, string) {
	t.Helper()

	local, out, _, dir := SetupAppTest(t, Config{Executor: ExecutorCluster}, ids...)
	if mountPath == "" {
		mountPath = dir
	}
	params, err := os.OpenFile(local.config.ParamsFile, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = fmt.Fprintf(params, clusterBlock, mountPath)
	require.NoError(t, err)
	require.NoError(t, params.Close())

	client := fake.NewClientset()
	client.PrependReactor("get", "jobs", func(action k8stesting.Action) (bool, runtime.Object, error) {
		get := action.(k8stesting.GetAction)
		job := &batchv1.Job{ObjectMeta: metav1.ObjectMeta{Name: get.GetName(), Namespace: get.GetNamespace()}}
		job.Status.Conditions = []batchv1.JobCondition{{Type: condition, Status: corev1.ConditionTrue}}
		return true, job, nil
	})

	a := NewApp(out, local.config, WithFs(afero.NewOsFs()), WithKubernetesClient(client))
	return a, out, client, dir
}

func jobCreates(client *fake.Clientset) []*batchv1.Job {
	var jobs []*batchv1.Job
	for _, action := range client.Actions() {
		if action.Matches("create", "jobs") {
			jobs = append(jobs, action.(k8stesting.CreateAction).GetObject().(*batchv1.Job))
		}
	}
	return jobs
}

func TestRunClusterFailedJobReportsPodExitCode(t *testing.T) {
	a, out, client, _ := SetupClusterAppTest(t, "", batchv1.JobFailed, "1abc")
	client.PrependReactor("create", "jobs", func(action k8stesting.Action) (bool, runtime.Object, error) {
		job := action.(k8stesting.CreateAction).GetObject().(*batchv1.Job)
		pod := &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{
				Name:      job.Name + "-x7k2p",
				Namespace: job.Namespace,
				Labels:    map[string]string{"job-name": job.Name},
			},
			Status: corev1.PodStatus{
				ContainerStatuses: []corev1.ContainerStatus{{
					Name:  "eppic-cli",
					State: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{ExitCode: 2}},
				}},
			},
		}
		return false, nil, client.Tracker().Add(pod)
	})

	err := a.Run(context.Background())
	require.Error(t, err)
	var failure *workunit.ProcessFailureError
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "1abc", failure.Identifier)
	assert.Equal(t, 2, failure.Code)
	assert.Contains(t, out.String(), "1 failed")
	assert.Len(t, jobCreates(client), 1)
}

func TestRunClusterSucceededJobWithoutMarker(t *testing.T) {
	a, _, client, _ := SetupClusterAppTest(t, "", batchv1.JobComplete, "1abc")

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, workunit.ErrIncompleteOutput)
	assert.Len(t, jobCreates(client), 1)
}

func TestRunClusterSkipsCompleteUnits(t *testing.T) {
	a, out, client, dir := SetupClusterAppTest(t, "", batchv1.JobComplete, "1abc")
	outDir, err := workunit.OutputDir(filepath.Join(dir, "wui"), "1abc")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, workunit.MarkerName), nil, 0o644))

	require.NoError(t, a.Run(context.Background()))
	assert.Empty(t, jobCreates(client))
	assert.Contains(t, out.String(), "1 already complete")
}

func TestRunClusterMakesPathsAbsolute(t *testing.T) {
	a, _, client, dir := SetupClusterAppTest(t, "", batchv1.JobFailed, "1abc")
	t.Chdir(dir)
	a.config.Overrides = map[string]string{
		"eppic_cli_conf_file": "./eppic_cli_${db}.conf",
		"eppic_cli_jar":       "eppic-cli.jar",
		"wui_files":           "wui",
	}

	require.Error(t, a.Run(context.Background()))
	jobs := jobCreates(client)
	require.Len(t, jobs, 1)
	command := jobs[0].Spec.Template.Spec.Containers[0].Command
	assert.Equal(t, filepath.Join(dir, "eppic_cli_2024_01.conf"), testutil.ArgAfter(command, "-g"))
	assert.Equal(t, filepath.Join(dir, "eppic-cli.jar"), testutil.ArgAfter(command, "-jar"))
	assert.Equal(t, filepath.Join(dir, "wui", "divided", "ab", "1abc"), testutil.ArgAfter(command, "-o"))
	assert.FileExists(t, filepath.Join(dir, "eppic_cli_2024_01.conf"))
}

func TestRunClusterConfigOutsideMount(t *testing.T) {
	mount := filepath.Join(t.TempDir(), "shared")
	a, _, client, _ := SetupClusterAppTest(t, mount, batchv1.JobComplete, "1abc")

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "eppic_cli_conf_file")
	assert.ErrorContains(t, err, "is not under cluster.mount_path "+mount)
	assert.Empty(t, jobCreates(client))
}
