package deploy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/r3labs/diff"
)

type (
	// Release is a manifest with the sha substituted in: the concrete
	// images a deploy rolls out.
	Release struct {
		SHA   string         `json:"sha"`
		Steps []RenderedStep `json:"steps"`
	}

	RenderedStep struct {
		Kind          Kind                `json:"kind" diff:"kind"`
		LabelSelector string              `json:"label_selector" diff:"label_selector"`
		Containers    []RenderedContainer `json:"containers" diff:"containers"`
	}

	RenderedContainer struct {
		Name  string `json:"name" diff:"name,identifier"`
		Image string `json:"image" diff:"image"`
	}

	// Change is one image-level difference between two releases.
	Change struct {
		Type string
		Path string
		From any
		To   any
	}
)

// shaPattern accepts abbreviated through full sha256 commit hashes.
var shaPattern = regexp.MustCompile(`^[0-9a-f]{7,64}$`)

// Render substitutes the sha into every image reference.
func (m *Manifest) Render(sha string) (*Release, error) {
	if !shaPattern.MatchString(sha) {
		return nil, fmt.Errorf("invalid sha %q: want 7-64 lowercase hex characters", sha)
	}
	r := &Release{SHA: sha, Steps: make([]RenderedStep, len(m.Steps))}
	for i, step := range m.Steps {
		rendered := RenderedStep{
			Kind:          step.Kind,
			LabelSelector: step.Selector.LabelSelector,
			Containers:    make([]RenderedContainer, len(step.Containers)),
		}
		for j, c := range step.Containers {
			rendered.Containers[j] = RenderedContainer{
				Name:  c.Name,
				Image: strings.ReplaceAll(c.Image, ShaPlaceholder, sha),
			}
		}
		r.Steps[i] = rendered
	}
	return r, nil
}

// Diff reports what changes between two releases. Containers are matched
// by name, so reordering alone produces no changes.
func Diff(from, to *Release) ([]Change, error) {
	changelog, err := diff.Diff(from.Steps, to.Steps)
	if err != nil {
		return nil, err
	}
	out := make([]Change, len(changelog))
	for i, c := range changelog {
		out[i] = Change{
			Type: c.Type,
			Path: strings.Join(c.Path, "."),
			From: c.From,
			To:   c.To,
		}
	}
	return out, nil
}
