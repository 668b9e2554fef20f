// Package awsx implements the AWS evidence contract on aws-sdk-go-v2.
// Everything here is best-effort enrichment: callers record failures into
// the investigation error list and continue.
package awsx

import (
	"context"
	"errors"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cloudtrailtypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"

	"github.com/tarkyaio/tarka/pkg/providers"
)

// Client is the aws-sdk-go-v2 backed AWS provider.
type Client struct {
	ec2c        *ec2.Client
	ecrc        *ecr.Client
	cloudtrailc *cloudtrail.Client
	region      string
}

var _ providers.AWS = (*Client)(nil)

// New loads the default AWS config chain for the region.
func New(ctx context.Context, region string) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &Client{
		ec2c:        ec2.NewFromConfig(cfg),
		ecrc:        ecr.NewFromConfig(cfg),
		cloudtrailc: cloudtrail.NewFromConfig(cfg),
		region:      region,
	}, nil
}

// Region returns the configured region (used to render aws CLI next steps).
func (c *Client) Region() string { return c.region }

// EC2InstanceStatus returns the instance status summary for a node's
// backing instance.
func (c *Client) EC2InstanceStatus(ctx context.Context, instanceID string) (map[string]any, error) {
	out, err := c.ec2c.DescribeInstanceStatus(ctx, &ec2.DescribeInstanceStatusInput{
		InstanceIds:         []string{instanceID},
		IncludeAllInstances: boolPtr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("describing instance status %s: %w", instanceID, err)
	}
	if len(out.InstanceStatuses) == 0 {
		return nil, nil
	}
	st := out.InstanceStatuses[0]
	m := map[string]any{"instance_id": instanceID}
	if st.InstanceState != nil {
		m["state"] = string(st.InstanceState.Name)
	}
	if st.InstanceStatus != nil {
		m["instance_status"] = string(st.InstanceStatus.Status)
	}
	if st.SystemStatus != nil {
		m["system_status"] = string(st.SystemStatus.Status)
	}
	return m, nil
}

// ECRImageExists checks whether repository:tag resolves in ECR. A NotFound
// from the registry is a definitive false, not an error.
func (c *Client) ECRImageExists(ctx context.Context, repository, tag string) (bool, error) {
	_, err := c.ecrc.DescribeImages(ctx, &ecr.DescribeImagesInput{
		RepositoryName: &repository,
		ImageIds:       []ecrtypes.ImageIdentifier{{ImageTag: &tag}},
	})
	if err != nil {
		var notFound *ecrtypes.ImageNotFoundException
		var repoNotFound *ecrtypes.RepositoryNotFoundException
		if errors.As(err, &notFound) || errors.As(err, &repoNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("describing image %s:%s: %w", repository, tag, err)
	}
	return true, nil
}

// CloudTrailEvents returns recent management events in [start, end].
func (c *Client) CloudTrailEvents(ctx context.Context, start, end time.Time, maxResults int) ([]map[string]any, error) {
	if maxResults <= 0 || maxResults > 50 {
		maxResults = 20
	}
	n := int32(maxResults)
	out, err := c.cloudtrailc.LookupEvents(ctx, &cloudtrail.LookupEventsInput{
		StartTime:  &start,
		EndTime:    &end,
		MaxResults: &n,
	})
	if err != nil {
		return nil, fmt.Errorf("looking up cloudtrail events: %w", err)
	}
	var events []map[string]any
	for _, ev := range out.Events {
		events = append(events, cloudtrailEventMap(ev))
	}
	return events, nil
}

func cloudtrailEventMap(ev cloudtrailtypes.Event) map[string]any {
	m := map[string]any{}
	if ev.EventName != nil {
		m["event_name"] = *ev.EventName
	}
	if ev.EventSource != nil {
		m["event_source"] = *ev.EventSource
	}
	if ev.Username != nil {
		m["username"] = *ev.Username
	}
	if ev.EventTime != nil {
		m["event_time"] = ev.EventTime.UTC().Format(time.RFC3339)
	}
	var resources []string
	for _, r := range ev.Resources {
		if r.ResourceName != nil {
			resources = append(resources, *r.ResourceName)
		}
	}
	if len(resources) > 0 {
		m["resources"] = resources
	}
	return m
}

func boolPtr(b bool) *bool { return &b }
