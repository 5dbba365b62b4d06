package await

import (
	"context"
	"net/url"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/promptwait/promptwait/pkg/gateway"
)

// ResultFetcher turns the raw result document of a completed execution into a
// flat artifact list with self-sufficient locators.
type ResultFetcher struct {
	boundary Boundary
}

func NewResultFetcher(boundary Boundary) *ResultFetcher {
	return &ResultFetcher{boundary: boundary}
}

// Fetch retrieves and flattens the result. Node ids are visited in sorted
// order (the boundary's map carries no meaningful ordering); within a node,
// wire order is preserved. An empty result body for a done execution is a
// valid zero-artifact completion. cfg.ArtifactGlob, when set, drops artifacts
// whose filename does not match.
func (f *ResultFetcher) Fetch(ctx context.Context, executionID string, cfg Config) ([]ResultArtifact, error) {
	doc, err := f.boundary.GetResult(ctx, executionID)
	if err != nil {
		return nil, asFailure(err, KindTransientNetwork)
	}
	return Flatten(doc, executionID, cfg.ArtifactGlob)
}

// Flatten is the pure normalization step, exported so callers that already
// hold a result document (the dashboard does) can reuse it.
func Flatten(doc gateway.ResultDocument, executionID, glob string) ([]ResultArtifact, error) {
	nodeIDs := make([]string, 0, len(doc))
	for nodeID := range doc {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)

	artifacts := make([]ResultArtifact, 0)
	for _, nodeID := range nodeIDs {
		for _, file := range doc[nodeID].Outputs {
			if glob != "" {
				matched, err := doublestar.Match(glob, file.Filename)
				if err != nil {
					return nil, newFailure(KindSubmissionRejected, "", "invalid artifact glob pattern "+glob, err)
				}
				if !matched {
					continue
				}
			}
			artifacts = append(artifacts, ResultArtifact{
				NodeID:   nodeID,
				Filename: file.Filename,
				Kind:     file.Type,
				Locator:  Locator(executionID, file),
			})
		}
	}
	return artifacts, nil
}

// Locator builds the retrieval reference for one output file. It combines
// filename, subfolder, type and the execution id so the file stays reachable
// through the gateway's view endpoint long after this process forgets the run.
func Locator(executionID string, file gateway.OutputFile) string {
	v := url.Values{}
	v.Set("filename", file.Filename)
	if file.Subfolder != "" {
		v.Set("subfolder", file.Subfolder)
	}
	v.Set("type", file.Type)
	v.Set("execution_id", executionID)
	return "view?" + v.Encode()
}
