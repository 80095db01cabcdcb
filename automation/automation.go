// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"zipfinder/awsconf"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissingInstanceID = errors.New("missing instance id")
)

type ec2API interface {
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
}

type eventDetail struct {
	InstanceID string `json:"instance-id"`
}

// ParseInstanceID reads the instance id from detail of an event
func ParseInstanceID(detail json.RawMessage) (string, error) {
	if len(detail) == 0 {
		return "", ErrMissingInstanceID
	}
	var ed eventDetail
	if err := json.Unmarshal(detail, &ed); err != nil {
		return "", fmt.Errorf("failed to parse event detail: %w", err)
	}
	if ed.InstanceID == "" {
		return "", ErrMissingInstanceID
	}
	return ed.InstanceID, nil
}

// InstanceStopper stops a compute instance referred by an event
// (typically an alarm on an idle loader machine).
type InstanceStopper struct {
	api ec2API
}

func (is *InstanceStopper) StopInstance(ctx context.Context, instanceID string) (*ec2.StopInstancesOutput, error) {
	out, err := is.api.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stop instance %s: %w", instanceID, err)
	}
	log.Info().Str("instanceId", instanceID).Msg("requested instance stop")
	return out, nil
}

func (is *InstanceStopper) HandleEvent(ctx context.Context, event events.CloudWatchEvent) (*ec2.StopInstancesOutput, error) {
	instanceID, err := ParseInstanceID(event.Detail)
	if err != nil {
		return nil, fmt.Errorf("failed to handle event %s: %w", event.ID, err)
	}
	return is.StopInstance(ctx, instanceID)
}

func NewInstanceStopper(ctx context.Context, conf *awsconf.Conf) (*InstanceStopper, error) {
	cfg, err := awsconf.Load(ctx, conf)
	if err != nil {
		return nil, err
	}
	return &InstanceStopper{api: ec2.NewFromConfig(cfg)}, nil
}
