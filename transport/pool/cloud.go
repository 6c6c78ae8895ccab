package pool

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/elastic/elastic-transport-go/transport"
	"github.com/google/uuid"
)

// Cloud is a Static pool seeded from a base64 Elastic Cloud ID, with HTTPS
// always on (derived from the decoded endpoint, never stored redundantly —
// §9 design notes) and, when credentials are supplied, a pre-bound
// Authorization header ready to merge into BoundConfiguration.Authentication.
type Cloud struct {
	*Static
	id     string
	genID  uuid.UUID
	authHdr string
}

// ParseCloudID decodes "name:base64(host$esUUID$kibanaUUID)" into the
// Elasticsearch node URI, following the format the Elastic Cloud console
// hands out.
func ParseCloudID(cloudID string) (name string, nodeURL *url.URL, err error) {
	parts := strings.SplitN(cloudID, ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("pool: invalid cloud id %q: missing ':' separator", cloudID)
	}
	name = parts[0]
	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("pool: invalid cloud id %q: %w", cloudID, err)
	}
	fields := strings.Split(string(decoded), "$")
	if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
		return "", nil, fmt.Errorf("pool: invalid cloud id %q: malformed payload", cloudID)
	}
	host := fields[0]
	esUUID := fields[1]
	nodeURL = &url.URL{Scheme: "https", Host: fmt.Sprintf("%s.%s:443", esUUID, host)}
	return name, nodeURL, nil
}

// NewCloud builds a single-node Static pool from a cloud id. apiKeyOrBasic,
// when non-empty, is pre-formatted ("ApiKey ..." or "Basic ...") and
// returned by AuthorizationHeader for the caller to fold into
// GlobalConfiguration.Authentication.
func NewCloud(cloudID, apiKeyOrBasic string, clock transport.Clock) (*Cloud, error) {
	name, nodeURL, err := ParseCloudID(cloudID)
	if err != nil {
		return nil, err
	}
	node := transport.NewNode(nodeURL)
	genID, genErr := uuid.Parse(name)
	if genErr != nil {
		genID = uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name))
	}
	return &Cloud{
		Static:  NewStatic([]*transport.Node{node}, clock),
		id:      cloudID,
		genID:   genID,
		authHdr: apiKeyOrBasic,
	}, nil
}

// AuthorizationHeader returns the pre-bound Authorization header value, or
// "" when the pool was constructed without credentials.
func (c *Cloud) AuthorizationHeader() string { return c.authHdr }

// ID returns the opaque generation id derived from the cloud deployment
// name, stable across process restarts given the same cloud id.
func (c *Cloud) ID() uuid.UUID { return c.genID }
