package aws

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

const (
	MetadataPublicHostname = "public-hostname"
	MetadataInstanceID     = "instance-id"
)

type metadataAPI interface {
	GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error)
}

// InstanceIdentity is what a running job learns about its own instance
type InstanceIdentity struct {
	PublicHostname string `json:"public_hostname"`
	InstanceID     string `json:"instance_id"`
}

// MetadataClient queries the instance metadata service from inside an instance
type MetadataClient struct {
	api metadataAPI
}

// NewMetadataClient creates a client; an empty endpoint uses the link-local default
func NewMetadataClient(endpoint string) *MetadataClient {
	return &MetadataClient{
		api: imds.New(imds.Options{Endpoint: endpoint}),
	}
}

// Identify looks up the public hostname and instance id
func (m *MetadataClient) Identify(ctx context.Context) (*InstanceIdentity, error) {
	hostname, err := m.get(ctx, MetadataPublicHostname)
	if err != nil {
		return nil, err
	}

	instanceID, err := m.get(ctx, MetadataInstanceID)
	if err != nil {
		return nil, err
	}

	return &InstanceIdentity{
		PublicHostname: hostname,
		InstanceID:     instanceID,
	}, nil
}

func (m *MetadataClient) get(ctx context.Context, path string) (string, error) {
	out, err := m.api.GetMetadata(ctx, &imds.GetMetadataInput{Path: path})
	if err != nil {
		return "", fmt.Errorf("reading instance metadata %s: %w", path, err)
	}
	defer func() { _ = out.Content.Close() }()

	data, err := io.ReadAll(out.Content)
	if err != nil {
		return "", fmt.Errorf("reading instance metadata %s: %w", path, err)
	}

	return strings.TrimSpace(string(data)), nil
}
