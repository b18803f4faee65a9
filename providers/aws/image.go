package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// VerifyImage checks that the machine image exists and is available
func (c *Client) VerifyImage(ctx context.Context, imageID string) error {
	input := &ec2.DescribeImagesInput{
		ImageIds: []string{imageID},
		Filters: []types.Filter{
			{
				Name:   aws.String("state"),
				Values: []string{"available"},
			},
		},
	}

	result, err := c.ec2Client.DescribeImages(ctx, input)
	if err != nil {
		return fmt.Errorf("describing image %s: %w", imageID, err)
	}

	if len(result.Images) == 0 {
		return fmt.Errorf("image %s is not available in %s", imageID, c.region)
	}

	return nil
}
