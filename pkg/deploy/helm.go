package deploy

import (
	"github.com/pkg/errors"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chartutil"
)

// Chart packages the release as a Helm chart: one template per workload
// kind and the sha exposed as a value.
func (r *Release) Chart(name, version, namespace string) (*chart.Chart, error) {
	manifests, err := r.PatchYAML(namespace)
	if err != nil {
		return nil, err
	}
	return &chart.Chart{
		Metadata: &chart.Metadata{
			APIVersion:  chart.APIVersionV2,
			Name:        name,
			Version:     version,
			AppVersion:  r.SHA,
			Description: "snuba workloads rendered from the deployment manifest",
		},
		Templates: []*chart.File{
			{Name: "templates/workloads.yaml", Data: manifests},
		},
		Values: map[string]any{
			"sha":       r.SHA,
			"namespace": namespace,
		},
	}, nil
}

// WriteChart saves the chart as a packaged archive under dir and returns
// the archive path.
func WriteChart(c *chart.Chart, dir string) (string, error) {
	path, err := chartutil.Save(c, dir)
	if err != nil {
		return "", errors.Wrapf(err, "saving chart %s", c.Name())
	}
	return path, nil
}
