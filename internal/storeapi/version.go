package storeapi

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/mod/semver"
)

// versionHeader carries the cart API's semantic version on every response.
const versionHeader = "API-Version"

// VersionError is returned when the cart API is older than this client supports.
type VersionError struct {
	ServerVersion  string
	MinimumVersion string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("cart API version %s is older than required %s", e.ServerVersion, e.MinimumVersion)
}

// CheckCompatibility probes GET /cart/count and compares the API-Version
// response header against minVersion. The probe's status is irrelevant; an
// unauthenticated 401 still carries the header.
//
// Returns the server version (empty when the server does not advertise one).
// An empty minVersion or missing header is not an error. A server version
// that is not semver-like is compared by string equality only.
func (c *Client) CheckCompatibility(ctx context.Context, minVersion string) (string, error) {
	resp, _, err := c.do(ctx, http.MethodGet, cartPath+"/count", nil, nil)
	if err != nil {
		return "", err
	}
	resp.Body.Close()

	serverVersion := resp.Header.Get(versionHeader)
	if minVersion == "" || serverVersion == "" {
		return serverVersion, nil
	}

	if !versionSatisfies(serverVersion, minVersion) {
		return serverVersion, &VersionError{ServerVersion: serverVersion, MinimumVersion: minVersion}
	}
	return serverVersion, nil
}

// versionSatisfies reports whether server >= minimum.
func versionSatisfies(server, minimum string) bool {
	sv, mv := normalizeVersion(server), normalizeVersion(minimum)

	// If either version is not semver-like, fall back to string comparison
	if !semver.IsValid(sv) || !semver.IsValid(mv) {
		return server == minimum
	}

	return semver.Compare(sv, mv) >= 0
}

// normalizeVersion adds "v" prefix if needed for semver parsing.
func normalizeVersion(v string) string {
	if v == "" {
		return "v0.0.0"
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}
