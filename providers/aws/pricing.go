package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/pricing/types"
)

// OnDemandPrice returns the Linux on-demand hourly USD price of instanceType
func (c *Client) OnDemandPrice(ctx context.Context, instanceType string) (float64, error) {
	input := &pricing.GetProductsInput{
		ServiceCode:   aws.String("AmazonEC2"),
		FormatVersion: aws.String("aws_v1"),
		MaxResults:    aws.Int32(10),
		Filters: []types.Filter{
			termMatch("instanceType", instanceType),
			termMatch("regionCode", c.region),
			termMatch("operatingSystem", "Linux"),
			termMatch("tenancy", "Shared"),
			termMatch("preInstalledSw", "NA"),
			termMatch("capacitystatus", "Used"),
		},
	}

	result, err := c.pricingClient.GetProducts(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("fetching on-demand price for %s: %w", instanceType, err)
	}

	price, err := parseOnDemandPrice(result.PriceList)
	if err != nil {
		return 0, fmt.Errorf("%s in %s: %w", instanceType, c.region, err)
	}

	c.log.WithField("instance_type", instanceType).WithField("usd_per_hour", price).Debug("Fetched on-demand price")

	return price, nil
}

func termMatch(field, value string) types.Filter {
	return types.Filter{
		Field: aws.String(field),
		Type:  types.FilterTypeTermMatch,
		Value: aws.String(value),
	}
}

type priceListEntry struct {
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				Unit         string            `json:"unit"`
				PricePerUnit map[string]string `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

// parseOnDemandPrice returns the first positive hourly USD price in the list
func parseOnDemandPrice(priceList []string) (float64, error) {
	for _, doc := range priceList {
		var entry priceListEntry
		if err := json.Unmarshal([]byte(doc), &entry); err != nil {
			return 0, fmt.Errorf("parsing price list entry: %w", err)
		}

		for _, term := range entry.Terms.OnDemand {
			for _, dim := range term.PriceDimensions {
				if dim.Unit != "Hrs" {
					continue
				}

				usd, err := strconv.ParseFloat(dim.PricePerUnit["USD"], 64)
				if err != nil || usd <= 0 {
					continue
				}
				return usd, nil
			}
		}
	}

	return 0, fmt.Errorf("no on-demand hourly price found")
}
