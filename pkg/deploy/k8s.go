package deploy

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/iancoleman/strcase"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"sigs.k8s.io/yaml"
)

var invalidNameChars = regexp.MustCompile(`[^a-z0-9-]+`)

// ObjectName derives a valid Kubernetes object name from a container
// name: kebab-case, lowercase alphanumerics and dashes, at most 63
// characters.
func ObjectName(name string) string {
	out := invalidNameChars.ReplaceAllString(strcase.ToKebab(name), "-")
	out = strings.Trim(out, "-")
	if len(out) > 63 {
		out = strings.Trim(out[:63], "-")
	}
	return out
}

// Objects renders each step as the Kubernetes object the external
// deployer applies: a Deployment or CronJob carrying the step's
// containers at their released images.
func (r *Release) Objects(namespace string) ([]any, error) {
	out := make([]any, 0, len(r.Steps))
	for i, step := range r.Steps {
		selector, err := labels.ConvertSelectorToLabelsMap(step.LabelSelector)
		if err != nil {
			return nil, fmt.Errorf("step %d: selector %q is not a plain label set: %w",
				i, step.LabelSelector, err)
		}
		containers := make([]corev1.Container, len(step.Containers))
		for j, c := range step.Containers {
			containers[j] = corev1.Container{Name: c.Name, Image: c.Image}
		}
		meta := metav1.ObjectMeta{
			Name:      ObjectName(step.Containers[0].Name),
			Namespace: namespace,
			Labels:    selector,
		}
		podSpec := corev1.PodTemplateSpec{
			ObjectMeta: metav1.ObjectMeta{Labels: selector},
			Spec:       corev1.PodSpec{Containers: containers},
		}

		switch step.Kind {
		case KindDeployment:
			out = append(out, &appsv1.Deployment{
				TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
				ObjectMeta: meta,
				Spec: appsv1.DeploymentSpec{
					Selector: &metav1.LabelSelector{MatchLabels: selector},
					Template: podSpec,
				},
			})
		case KindCronJob:
			out = append(out, &batchv1.CronJob{
				TypeMeta:   metav1.TypeMeta{APIVersion: "batch/v1", Kind: "CronJob"},
				ObjectMeta: meta,
				Spec: batchv1.CronJobSpec{
					JobTemplate: batchv1.JobTemplateSpec{
						Spec: batchv1.JobSpec{Template: podSpec},
					},
				},
			})
		default:
			return nil, fmt.Errorf("step %d: unknown kind %q", i, step.Kind)
		}
	}
	return out, nil
}

// PatchYAML renders the release's objects as a multi-document YAML
// stream.
func (r *Release) PatchYAML(namespace string) ([]byte, error) {
	objects, err := r.Objects(namespace)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for i, obj := range objects {
		if i > 0 {
			buf.WriteString("---\n")
		}
		data, err := yaml.Marshal(obj)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}
