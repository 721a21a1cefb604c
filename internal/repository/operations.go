package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/kestrelgames/cytrus-updater/internal/manifest"
)

// GetGamesList fetches cytrus.json (§4.2). When preRelease is set, each
// preReleasedGames entry replaces the games entry with the same id as a
// whole; nested fields of the two entries are not merged.
func (c *Client) GetGamesList(ctx context.Context) (*manifest.GameList, error) {
	raw, err := c.doGet(ctx, "getGamesList", "/cytrus.json")
	if err != nil {
		return nil, err
	}
	gl, err := manifest.ParseGameList(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing cytrus.json")
	}
	if c.preRelease {
		mergePreReleased(gl)
	}
	return gl, nil
}

func mergePreReleased(gl *manifest.GameList) {
	if len(gl.PreReleasedGames) == 0 {
		return
	}
	for id, entry := range gl.PreReleasedGames {
		gl.Games[id] = entry
	}
}

func releasePath(gameUID, channel, platform, version string) string {
	return fmt.Sprintf("/%s/releases/%s/%s/%s.json", gameUID, channel, platform, version)
}

// GetRelease fetches a release's per-fragment file list.
func (c *Client) GetRelease(ctx context.Context, gameUID, channel, platform, version string) (manifest.Manifest, error) {
	path := releasePath(gameUID, channel, platform, version)
	raw, err := c.doGet(ctx, "getRelease", path)
	if err != nil {
		return nil, err
	}
	if manifest.IsV4FileShape(raw) {
		return nil, errors.New("repository: release manifest is v4-shaped (Files capitalized)")
	}

	var m manifest.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "decoding release manifest")
	}
	return m, nil
}

// GetReleaseMeta fetches the .meta sibling of a release file list, per-
// fragment size totals used for progress precomputation.
func (c *Client) GetReleaseMeta(ctx context.Context, gameUID, channel, platform, version string) (manifest.ReleaseMeta, error) {
	path := siblingPath(releasePath(gameUID, channel, platform, version), ".meta")
	raw, err := c.doGet(ctx, "getReleaseMeta", path)
	if err != nil {
		return nil, err
	}
	var meta manifest.ReleaseMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, errors.Wrap(err, "decoding release meta")
	}
	return meta, nil
}

// GetReleaseConfig fetches the .config sibling, carrying only the
// configuration fragment, used for PRE_INSTALL (§4.2).
func (c *Client) GetReleaseConfig(ctx context.Context, gameUID, channel, platform, version string) (*manifest.Fragment, error) {
	path := siblingPath(releasePath(gameUID, channel, platform, version), ".config")
	raw, err := c.doGet(ctx, "getReleaseConfig", path)
	if err != nil {
		return nil, err
	}
	var frag manifest.Fragment
	if err := json.Unmarshal(raw, &frag); err != nil {
		return nil, errors.Wrap(err, "decoding release config")
	}
	return &frag, nil
}

func siblingPath(jsonPath, suffix string) string {
	return strings.TrimSuffix(jsonPath, ".json") + suffix
}

func hashBucketPath(prefix, gameUID, hash string) string {
	shard := hash
	if len(hash) >= 2 {
		shard = hash[0:2]
	}
	return fmt.Sprintf("/%s/%s/%s/%s", gameUID, prefix, shard, hash)
}

// GetHash opens a streaming reader over a blob's content, addressed by its
// content hash, at path /{gameUid}/hashes/{hash[0:2]}/{hash}. RangeHonored
// reports whether the server actually served a partial-content response for
// a Range request, per §4.4: a caller that asked for a range but got this
// false back is looking at a full body from offset zero, not a resumed one.
func (c *Client) GetHash(ctx context.Context, gameUID, hash, rangeHeader string) (body io.ReadCloser, contentLength int64, rangeHonored bool, err error) {
	return c.getStream(ctx, "getHash", hashBucketPath("hashes", gameUID, hash), hash, rangeHeader)
}

// GetInformation opens a streaming reader over an archive's tar payload, at
// the same shape as GetHash but under the informations bucket.
func (c *Client) GetInformation(ctx context.Context, gameUID, hash, rangeHeader string) (body io.ReadCloser, contentLength int64, rangeHonored bool, err error) {
	return c.getStream(ctx, "getInformation", hashBucketPath("informations", gameUID, hash), hash, rangeHeader)
}

func (c *Client) getStream(ctx context.Context, op, path, displayPath, rangeHeader string) (io.ReadCloser, int64, bool, error) {
	body, resp, err := c.openStream(ctx, path, rangeHeader)
	if err != nil {
		return nil, 0, false, &NetworkError{Op: op, Path: displayPath, Err: err}
	}
	if resp.StatusCode >= 300 {
		_ = body.Close()
		return nil, 0, false, &NetworkError{Op: op, Path: displayPath, StatusCode: resp.StatusCode}
	}
	return body, resp.ContentLength, isRangeHonored(rangeHeader != "", resp), nil
}

// isRangeHonored reports whether resp proves the server actually resumed a
// Range request rather than quietly falling back to a full body: a 206 with
// Accept-Ranges: bytes. A request that never asked for a range, or a 200
// that ignored one, is not honored - the caller's resume offset no longer
// applies and must be discarded (§4.4).
func isRangeHonored(requestedRange bool, resp *http.Response) bool {
	if !requestedRange {
		return false
	}
	return resp.StatusCode == http.StatusPartialContent &&
		strings.EqualFold(strings.TrimSpace(resp.Header.Get("Accept-Ranges")), "bytes")
}
