package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/nais/devproxy/pkg/client/errkind"
)

// kubernetesResponse mirrors the minimal subset of `kubectl get application -o json`
// this package cares about; unknown fields are ignored by encoding/json automatically.
type kubernetesResponse struct {
	Items []applicationResource `json:"items"`
}

type applicationResource struct {
	Metadata resourceMetadata    `json:"metadata"`
	Spec     applicationSpec     `json:"spec"`
}

type resourceMetadata struct {
	Name string `json:"name"`
}

type applicationSpec struct {
	Ingresses []string     `json:"ingresses"`
	Liveness  *healthCheck `json:"liveness"`
	Readiness *healthCheck `json:"readiness"`
}

type healthCheck struct {
	Path string `json:"path"`
}

// Fetch runs `kubectl --context <context> --namespace <namespace> get
// application -o json` and parses its output into Descriptors. Items with
// no ingresses declared are dropped.
func Fetch(ctx context.Context, kubeContext, namespace string) ([]Descriptor, error) {
	cmd := dexec.CommandContext(ctx, "kubectl",
		"--context", kubeContext,
		"--namespace", namespace,
		"get", "application", "-o", "json")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	dlog.Debugf(ctx, "discovering applications in context=%s namespace=%s", kubeContext, namespace)
	if err := cmd.Run(); err != nil {
		return nil, errkind.DiscoveryFailed.New(
			errors.Wrapf(err, "kubectl get application failed: %s", strings.TrimSpace(stderr.String())))
	}

	var resp kubernetesResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, errkind.DiscoveryFailed.New(errors.Wrap(err, "parsing kubectl get application output"))
	}

	descriptors := make([]Descriptor, 0, len(resp.Items))
	for _, item := range resp.Items {
		if len(item.Spec.Ingresses) == 0 {
			continue
		}
		liveness := ""
		if item.Spec.Liveness != nil {
			liveness = item.Spec.Liveness.Path
		}
		descriptors = append(descriptors, Descriptor{
			ApplicationName: item.Metadata.Name,
			Ingresses:       item.Spec.Ingresses,
			Liveness:        liveness,
			Context:         kubeContext,
			Namespace:       namespace,
		})
	}
	dlog.Debugf(ctx, "discovered %d applications in context=%s namespace=%s", len(descriptors), kubeContext, namespace)
	return descriptors, nil
}

// FetchAll runs Fetch for every (context, namespace) pair in the cross
// product of contexts x namespaces, concatenating the
// results in deterministic encounter order: contexts outer, namespaces
// inner. The underlying kubectl invocations are fanned out concurrently
// and joined before the concatenation happens, so a
// failure in any one pair aborts the whole discovery.
func FetchAll(ctx context.Context, contexts, namespaces []string) ([]Descriptor, error) {
	results := make([][]Descriptor, len(contexts)*len(namespaces))

	g, gctx := errgroup.WithContext(ctx)
	for ci, kubeContext := range contexts {
		for ni, namespace := range namespaces {
			idx := ci*len(namespaces) + ni
			kubeContext, namespace := kubeContext, namespace
			g.Go(func() error {
				descriptors, err := Fetch(gctx, kubeContext, namespace)
				if err != nil {
					return err
				}
				results[idx] = descriptors
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := make([]Descriptor, 0)
	for _, part := range results {
		all = append(all, part...)
	}
	return all, nil
}
