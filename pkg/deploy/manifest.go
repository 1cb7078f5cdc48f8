// Package deploy models the declarative deployment manifest: the list of
// container images released as Kubernetes Deployments and CronJobs, the
// sha templating that turns it into a concrete release, and the objects
// handed to the external deployer.
package deploy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/getsentry/snuba/pkg/multierr"
)

type (
	Kind string

	// Manifest is one deploy.yaml: an ordered list of steps applied in
	// sequence by the external deployer.
	Manifest struct {
		Steps []Step `yaml:"steps" json:"steps"`
	}

	Step struct {
		Kind       Kind            `yaml:"kind" json:"kind"`
		Selector   Selector        `yaml:"selector" json:"selector"`
		Containers []ContainerSpec `yaml:"containers" json:"containers"`
	}

	// Selector targets the existing workloads the step patches.
	Selector struct {
		LabelSelector string `yaml:"label_selector" json:"label_selector"`
	}

	// ContainerSpec names a container within the targeted pod spec and the
	// templated image reference to roll it to.
	ContainerSpec struct {
		Image string `yaml:"image" json:"image"`
		Name  string `yaml:"name" json:"name"`
	}
)

const (
	KindDeployment Kind = "KubernetesDeployment"
	KindCronJob    Kind = "KubernetesCronJob"

	// ShaPlaceholder is substituted with the release commit at render
	// time. It may appear more than once per image.
	ShaPlaceholder = "{sha}"
)

// Load reads and validates a manifest. Unknown YAML keys are rejected so
// typos do not silently drop configuration.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint:errcheck

	var m Manifest
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}
	if len(m.Steps) == 0 {
		return nil, fmt.Errorf("manifest %s has no steps", path)
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid manifest %s", path)
	}
	return &m, nil
}

// LoadGlob loads every manifest matching the pattern, sorted by path.
// Patterns support ** through doublestar.
func LoadGlob(pattern string) (map[string]*Manifest, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "bad manifest pattern %q", pattern)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no manifests match %q", pattern)
	}
	sort.Strings(matches)

	out := make(map[string]*Manifest, len(matches))
	for _, path := range matches {
		m, err := Load(path)
		if err != nil {
			return nil, err
		}
		out[path] = m
	}
	return out, nil
}

// Validate checks the schema invariants: known kinds, parseable label
// selectors, and per-step container lists with unique non-empty names and
// templated images.
func (m *Manifest) Validate() error {
	var errs multierr.Error
	for i, step := range m.Steps {
		switch step.Kind {
		case KindDeployment, KindCronJob:
		default:
			errs.Append(fmt.Errorf("step %d: unknown kind %q", i, step.Kind))
		}
		if _, err := labels.Parse(step.Selector.LabelSelector); err != nil {
			errs.Append(fmt.Errorf("step %d: invalid label selector %q: %w", i, step.Selector.LabelSelector, err))
		}
		if len(step.Containers) == 0 {
			errs.Append(fmt.Errorf("step %d: no containers", i))
		}
		seen := make(map[string]bool, len(step.Containers))
		for j, c := range step.Containers {
			if c.Name == "" {
				errs.Append(fmt.Errorf("step %d container %d: name is empty", i, j))
			} else if seen[c.Name] {
				errs.Append(fmt.Errorf("step %d: duplicate container name %q", i, c.Name))
			}
			seen[c.Name] = true
			if c.Image == "" {
				errs.Append(fmt.Errorf("step %d container %q: image is empty", i, c.Name))
			} else if !strings.Contains(c.Image, ShaPlaceholder) {
				errs.Append(fmt.Errorf("step %d container %q: image %q is missing the %s placeholder",
					i, c.Name, c.Image, ShaPlaceholder))
			}
		}
	}
	return errs.ErrOrNil()
}
