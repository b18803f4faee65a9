package resource_manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spot-trainer/core/models"
	"spot-trainer/core/retry"
	"spot-trainer/providers/aws"

	"github.com/sirupsen/logrus"
)

// ErrInstanceGone is returned when an instance stops or terminates before it
// became reachable, typically because spot capacity was reclaimed
var ErrInstanceGone = errors.New("instance left the running path before it was reachable")

// InstanceAPI is the subset of the AWS client used for provisioning
type InstanceAPI interface {
	RunInstance(ctx context.Context, req aws.LaunchRequest) (*models.InstanceState, error)
	DescribeInstance(ctx context.Context, instanceID string) (*models.InstanceState, error)
}

// Provisioner requests one interruptible instance and waits for its address
type Provisioner struct {
	log           logrus.FieldLogger
	api           InstanceAPI
	region        string
	launchPolicy  retry.Policy
	addressPolicy retry.Policy
	now           func() time.Time
}

// NewProvisioner creates a new provisioner
func NewProvisioner(log logrus.FieldLogger, api InstanceAPI, region string, launchPolicy, addressPolicy retry.Policy) *Provisioner {
	return &Provisioner{
		log:           log.WithField("component", "provisioner"),
		api:           api,
		region:        region,
		launchPolicy:  launchPolicy,
		addressPolicy: addressPolicy,
		now:           time.Now,
	}
}

// Launch requests an instance, retrying while capacity is unavailable, then
// polls until it is running with a public address
func (p *Provisioner) Launch(ctx context.Context, req aws.LaunchRequest) (*models.InstanceRecord, error) {
	if req.Tag == "" {
		return nil, fmt.Errorf("launch request has no tag")
	}

	log := p.log.WithFields(logrus.Fields{
		"run":           req.Tag,
		"instance_type": req.InstanceType,
	})

	var state *models.InstanceState

	attempts, err := p.launchPolicy.Do(ctx, log, func(ctx context.Context) error {
		var err error
		state, err = p.api.RunInstance(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch instance: %w", err)
	}

	log = log.WithField("instance_id", state.InstanceID)
	log.WithField("attempts", attempts).Info("Instance requested")

	state, err = p.waitForAddress(ctx, log, state)
	if err != nil {
		return nil, err
	}

	return &models.InstanceRecord{
		InstanceID:    state.InstanceID,
		PublicAddress: state.PublicAddress,
		Tag:           req.Tag,
		SpotRequestID: state.SpotRequestID,
		Region:        p.region,
		LaunchedAt:    p.now().UTC(),
	}, nil
}

func (p *Provisioner) waitForAddress(ctx context.Context, log logrus.FieldLogger, state *models.InstanceState) (*models.InstanceState, error) {
	if ready(state) {
		return state, nil
	}

	id := state.InstanceID
	current := state

	_, err := p.addressPolicy.Do(ctx, log, func(ctx context.Context) error {
		s, err := p.api.DescribeInstance(ctx, id)
		if err != nil {
			return err
		}
		current = s

		if s.Status.Gone() {
			return retry.Permanent(fmt.Errorf("%w: %s is %s", ErrInstanceGone, id, s.Status))
		}
		if !ready(s) {
			return fmt.Errorf("instance %s is %s, no public address yet", id, s.Status)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for instance %s: %w", id, err)
	}

	log.WithField("host", current.PublicAddress).Info("Instance has a public address")
	return current, nil
}

func ready(s *models.InstanceState) bool {
	return s.Status == models.InstanceStatusRunning && s.PublicAddress != ""
}
