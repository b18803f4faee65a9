package aws

import (
	"context"
	"fmt"

	"spot-trainer/core/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/sirupsen/logrus"
)

// ManagedByTag marks instances launched by this tool
const ManagedByTag = "spot-trainer"

// LaunchRequest fixes everything about the single instance to request
type LaunchRequest struct {
	Tag             string
	ImageID         string
	InstanceType    string
	VolumeType      string
	RootDevice      string
	KeyName         string
	SecurityGroups  []string
	InstanceProfile string
	MarketOptions   *types.InstanceMarketOptionsRequest
}

// RunInstance requests one instance and returns its first observed state
func (c *Client) RunInstance(ctx context.Context, req LaunchRequest) (*models.InstanceState, error) {
	result, err := c.ec2Client.RunInstances(ctx, buildRunInstancesInput(req))
	if err != nil {
		return nil, fmt.Errorf("failed to run instance: %w", err)
	}

	if len(result.Instances) == 0 {
		return nil, fmt.Errorf("run instances returned no instance")
	}

	state := instanceState(result.Instances[0])

	c.log.WithFields(logrus.Fields{
		"instance_id": state.InstanceID,
		"tag":         req.Tag,
		"state":       state.Status,
	}).Debug("Instance requested")

	return state, nil
}

// DescribeInstance returns the current state of an instance
func (c *Client) DescribeInstance(ctx context.Context, instanceID string) (*models.InstanceState, error) {
	result, err := c.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance %s: %w", instanceID, err)
	}

	for _, reservation := range result.Reservations {
		for _, instance := range reservation.Instances {
			if aws.ToString(instance.InstanceId) == instanceID {
				return instanceState(instance), nil
			}
		}
	}

	return nil, fmt.Errorf("instance %s not found", instanceID)
}

func buildRunInstancesInput(req LaunchRequest) *ec2.RunInstancesInput {
	input := &ec2.RunInstancesInput{
		ImageId:        aws.String(req.ImageID),
		InstanceType:   types.InstanceType(req.InstanceType),
		MinCount:       aws.Int32(1),
		MaxCount:       aws.Int32(1),
		SecurityGroups: req.SecurityGroups,
		TagSpecifications: []types.TagSpecification{
			{
				ResourceType: types.ResourceTypeInstance,
				Tags:         runTags(req.Tag),
			},
		},
		InstanceMarketOptions: req.MarketOptions,
	}

	if req.KeyName != "" {
		input.KeyName = aws.String(req.KeyName)
	}

	if req.InstanceProfile != "" {
		input.IamInstanceProfile = &types.IamInstanceProfileSpecification{
			Name: aws.String(req.InstanceProfile),
		}
	}

	if req.VolumeType != "" && req.RootDevice != "" {
		input.BlockDeviceMappings = []types.BlockDeviceMapping{
			{
				DeviceName: aws.String(req.RootDevice),
				Ebs: &types.EbsBlockDevice{
					VolumeType: types.VolumeType(req.VolumeType),
				},
			},
		}
	}

	if req.MarketOptions != nil && req.MarketOptions.MarketType == types.MarketTypeSpot {
		input.TagSpecifications = append(input.TagSpecifications, types.TagSpecification{
			ResourceType: types.ResourceTypeSpotInstancesRequest,
			Tags:         runTags(req.Tag),
		})
	}

	return input
}

func runTags(tag string) []types.Tag {
	return []types.Tag{
		{
			Key:   aws.String("Name"),
			Value: aws.String(tag),
		},
		{
			Key:   aws.String("ManagedBy"),
			Value: aws.String(ManagedByTag),
		},
	}
}

func instanceState(instance types.Instance) *models.InstanceState {
	state := &models.InstanceState{
		InstanceID:    aws.ToString(instance.InstanceId),
		PublicAddress: aws.ToString(instance.PublicDnsName),
		SpotRequestID: aws.ToString(instance.SpotInstanceRequestId),
	}

	if instance.State != nil {
		state.Status = models.InstanceStatus(instance.State.Name)
	}

	return state
}
