package contentstore

import (
	"context"
	"fmt"
	"io"

	ipfsapi "github.com/ipfs/go-ipfs-api"
)

// IPFSStore implements ContentStore against an IPFS node's HTTP API.
type IPFSStore struct {
	shell *ipfsapi.Shell
}

// NewIPFSStore connects to the IPFS HTTP API at the given multiaddr or URL
// (e.g. "localhost:5001").
func NewIPFSStore(apiURL string) *IPFSStore {
	return &IPFSStore{shell: ipfsapi.NewShell(apiURL)}
}

// Up reports whether the node answers the API.
func (s *IPFSStore) Up() bool {
	return s.shell.IsUp()
}

func (s *IPFSStore) Publish(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cid, err := s.shell.Add(r)
	if err != nil {
		return "", fmt.Errorf("publish %q to ipfs: %w", name, err)
	}
	return cid, nil
}
