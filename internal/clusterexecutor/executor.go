// Package clusterexecutor runs analysis invocations as Kubernetes Jobs.
//
// Each invocation becomes one batch/v1 Job with a single container and no
// retries. The executor blocks until the Job reaches a terminal condition and
// reads the container's exit code from the Job's pod. The output tree is
// expected on a shared volume so that completion can be checked from the
// submitting host.
package clusterexecutor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/apparentlymart/go-shquot/shquot"
	"github.com/specialistvlad/eppicbatch/internal/ctxlog"
	"github.com/specialistvlad/eppicbatch/internal/workunit"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/rand"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"
)

const (
	appLabel        = "app"
	appName         = "eppic-cli"
	identifierLabel = "eppic/identifier"
	jobNameLabel    = "job-name"
	containerName   = "eppic-cli"
	volumeName      = "output"
)

// Executor implements workunit.Executor on a Kubernetes cluster.
type Executor struct {
	client   kubernetes.Interface
	settings Settings
	nameFunc func(identifier string) string
}

// New returns an executor that submits Jobs with client.
func New(client kubernetes.Interface, settings Settings) *Executor {
	if settings.Namespace == "" {
		settings.Namespace = defaultNamespace
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = defaultPollInterval
	}
	return &Executor{client: client, settings: settings, nameFunc: jobName}
}

var (
	unsafeName  = regexp.MustCompile(`[^a-z0-9-]+`)
	unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)
)

// jobName returns a DNS-1123 name unique per submission.
func jobName(identifier string) string {
	base := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(identifier), "-"), "-")
	if len(base) > 40 {
		base = base[:40]
	}
	if base == "" {
		base = "unit"
	}
	return fmt.Sprintf("eppic-%s-%s", base, rand.String(5))
}

// labelValue makes identifier usable as a label value.
func labelValue(identifier string) string {
	v := unsafeLabel.ReplaceAllString(identifier, "_")
	if len(v) > 63 {
		v = v[:63]
	}
	return strings.Trim(v, "_.-")
}

// Execute submits inv, waits for the Job to finish and returns the exit code.
// Errors while polling are retried until the Job is gone or ctx ends.
func (e *Executor) Execute(ctx context.Context, inv workunit.Invocation) (int, error) {
	ctx, logger := ctxlog.With(ctx, "identifier", inv.Identifier)

	spec, err := e.jobSpec(inv)
	if err != nil {
		return -1, err
	}

	jobs := e.client.BatchV1().Jobs(e.settings.Namespace)
	created, err := jobs.Create(ctx, spec, metav1.CreateOptions{})
	if err != nil {
		return -1, fmt.Errorf("creating job for %s: %w", inv.Identifier, err)
	}
	logger = logger.With("job", created.Name)
	logger.Info("Submitted cluster job.", "namespace", e.settings.Namespace)

	var final *batchv1.Job
	err = wait.PollUntilContextCancel(ctx, e.settings.PollInterval, true, func(ctx context.Context) (bool, error) {
		job, err := jobs.Get(ctx, created.Name, metav1.GetOptions{})
		switch {
		case err == nil:
		case apierrors.IsNotFound(err):
			return false, err
		case ctx.Err() != nil:
			return false, ctx.Err()
		default:
			logger.Warn("Polling cluster job failed, will retry.", "error", err)
			return false, nil
		}
		switch jobStatus(job) {
		case statusSucceeded, statusFailed:
			final = job
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return -1, fmt.Errorf("waiting for job %s: %w", created.Name, err)
	}

	if jobStatus(final) == statusSucceeded {
		logger.Info("Cluster job succeeded.")
		return 0, nil
	}

	code := e.exitCode(ctx, created.Name)
	logger.Warn("Cluster job failed.", "exit_code", code)
	return code, nil
}

// exitCode reads the first non-zero terminated exit code from the Job's
// pods. Failed Jobs whose pods are gone or unreadable report 1.
func (e *Executor) exitCode(ctx context.Context, name string) int {
	logger := ctxlog.FromContext(ctx)

	pods, err := e.client.CoreV1().Pods(e.settings.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", jobNameLabel, name),
	})
	if err != nil {
		logger.Warn("Could not list pods of failed job.", "job", name, "error", err)
		return 1
	}
	for _, pod := range pods.Items {
		for _, cs := range pod.Status.ContainerStatuses {
			if t := cs.State.Terminated; t != nil && t.ExitCode != 0 {
				return int(t.ExitCode)
			}
		}
	}
	return 1
}

type status int

const (
	statusUnknown status = iota
	statusRunning
	statusSucceeded
	statusFailed
)

func jobStatus(job *batchv1.Job) status {
	for _, c := range job.Status.Conditions {
		if c.Status != corev1.ConditionTrue {
			continue
		}
		switch c.Type {
		case batchv1.JobComplete:
			return statusSucceeded
		case batchv1.JobFailed:
			return statusFailed
		}
	}
	if job.Status.Succeeded >= 1 {
		return statusSucceeded
	}
	if job.Status.Failed >= 1 {
		return statusFailed
	}
	if job.Status.Active >= 1 {
		return statusRunning
	}
	return statusUnknown
}

// command wraps argv so the container appends its output to the log the
// submitting side already started.
func command(inv workunit.Invocation) []string {
	if inv.LogPath == "" {
		return inv.Args
	}
	script := fmt.Sprintf(`exec "$@" >>%s 2>&1`, shquot.POSIXShell([]string{inv.LogPath}))
	return append([]string{"/bin/sh", "-c", script, "sh"}, inv.Args...)
}

func (e *Executor) jobSpec(inv workunit.Invocation) (*batchv1.Job, error) {
	if len(inv.Args) == 0 {
		return nil, fmt.Errorf("empty command for %s", inv.Identifier)
	}

	labels := map[string]string{
		appLabel:        appName,
		identifierLabel: labelValue(inv.Identifier),
	}

	container := corev1.Container{
		Name:    containerName,
		Image:   e.settings.Image,
		Command: command(inv),
	}

	requests := corev1.ResourceList{}
	if e.settings.Memory != "" {
		q, err := resource.ParseQuantity(e.settings.Memory)
		if err != nil {
			return nil, fmt.Errorf("invalid memory %q: %w", e.settings.Memory, err)
		}
		requests[corev1.ResourceMemory] = q
	}
	if e.settings.CPU != "" {
		q, err := resource.ParseQuantity(e.settings.CPU)
		if err != nil {
			return nil, fmt.Errorf("invalid cpu %q: %w", e.settings.CPU, err)
		}
		requests[corev1.ResourceCPU] = q
	}
	if len(requests) > 0 {
		container.Resources = corev1.ResourceRequirements{Requests: requests, Limits: requests}
	}

	podSpec := corev1.PodSpec{
		RestartPolicy:      corev1.RestartPolicyNever,
		ServiceAccountName: e.settings.ServiceAccount,
	}
	if e.settings.ClaimName != "" {
		container.VolumeMounts = []corev1.VolumeMount{{Name: volumeName, MountPath: e.settings.MountPath}}
		podSpec.Volumes = []corev1.Volume{{
			Name: volumeName,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: e.settings.ClaimName},
			},
		}}
	}
	podSpec.Containers = []corev1.Container{container}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      e.nameFunc(inv.Identifier),
			Namespace: e.settings.Namespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: ptr.To[int32](0),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       podSpec,
			},
		},
	}
	if e.settings.TTL > 0 {
		job.Spec.TTLSecondsAfterFinished = ptr.To(int32(e.settings.TTL.Seconds()))
	}
	return job, nil
}
