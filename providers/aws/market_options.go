package aws

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// marketOptionsFile is the AWS CLI --instance-market-options document
type marketOptionsFile struct {
	MarketType  string `json:"MarketType"`
	SpotOptions *struct {
		MaxPrice                     string     `json:"MaxPrice"`
		SpotInstanceType             string     `json:"SpotInstanceType"`
		BlockDurationMinutes         int32      `json:"BlockDurationMinutes"`
		ValidUntil                   *time.Time `json:"ValidUntil"`
		InstanceInterruptionBehavior string     `json:"InstanceInterruptionBehavior"`
	} `json:"SpotOptions"`
}

// LoadMarketOptions reads an interruptible-instance pricing document
func LoadMarketOptions(path string) (*types.InstanceMarketOptionsRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading market options: %w", err)
	}
	return ParseMarketOptions(data)
}

// ParseMarketOptions converts the JSON document into the EC2 request type
func ParseMarketOptions(data []byte) (*types.InstanceMarketOptionsRequest, error) {
	var doc marketOptionsFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing market options: %w", err)
	}

	if doc.MarketType == "" {
		doc.MarketType = string(types.MarketTypeSpot)
	}

	if doc.MarketType != string(types.MarketTypeSpot) {
		return nil, fmt.Errorf("unsupported market type %q", doc.MarketType)
	}

	opts := &types.InstanceMarketOptionsRequest{
		MarketType:  types.MarketTypeSpot,
		SpotOptions: &types.SpotMarketOptions{},
	}

	if so := doc.SpotOptions; so != nil {
		if so.MaxPrice != "" {
			if _, err := strconv.ParseFloat(so.MaxPrice, 64); err != nil {
				return nil, fmt.Errorf("invalid MaxPrice %q: %w", so.MaxPrice, err)
			}
			opts.SpotOptions.MaxPrice = aws.String(so.MaxPrice)
		}
		if so.SpotInstanceType != "" {
			opts.SpotOptions.SpotInstanceType = types.SpotInstanceType(so.SpotInstanceType)
		}
		if so.BlockDurationMinutes > 0 {
			opts.SpotOptions.BlockDurationMinutes = aws.Int32(so.BlockDurationMinutes)
		}
		if so.ValidUntil != nil {
			opts.SpotOptions.ValidUntil = so.ValidUntil
		}
		if so.InstanceInterruptionBehavior != "" {
			opts.SpotOptions.InstanceInterruptionBehavior = types.InstanceInterruptionBehavior(so.InstanceInterruptionBehavior)
		}
	}

	return opts, nil
}

// HasMaxPrice reports whether the options already carry a price cap
func HasMaxPrice(opts *types.InstanceMarketOptionsRequest) bool {
	return opts != nil && opts.SpotOptions != nil && aws.ToString(opts.SpotOptions.MaxPrice) != ""
}

// SetMaxPrice caps the hourly spot price in USD
func SetMaxPrice(opts *types.InstanceMarketOptionsRequest, usdPerHour float64) {
	if opts.SpotOptions == nil {
		opts.SpotOptions = &types.SpotMarketOptions{}
	}
	opts.SpotOptions.MaxPrice = aws.String(strconv.FormatFloat(usdPerHour, 'f', 4, 64))
}
