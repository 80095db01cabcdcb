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

package kmscrypt

import (
	"context"
	"errors"
	"fmt"
	"zipfinder/awsconf"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

var (
	ErrMissingKeyID = errors.New("missing KMS key id")
)

type kmsAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Client encrypts and decrypts small secrets (e.g. store credentials)
// using a managed KMS key. No cryptography is performed locally.
type Client struct {
	api   kmsAPI
	keyID string
}

func (c *Client) Encrypt(ctx context.Context, plaintext string) ([]byte, error) {
	if c.keyID == "" {
		return nil, fmt.Errorf("failed to encrypt: %w", ErrMissingKeyID)
	}
	out, err := c.api.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(c.keyID),
		Plaintext: []byte(plaintext),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt: %w", err)
	}
	return out.CiphertextBlob, nil
}

func (c *Client) Decrypt(ctx context.Context, blob []byte) (string, error) {
	input := &kms.DecryptInput{CiphertextBlob: blob}
	if c.keyID != "" {
		input.KeyId = aws.String(c.keyID)
	}
	out, err := c.api.Decrypt(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(out.Plaintext), nil
}

func NewClient(ctx context.Context, conf *awsconf.Conf) (*Client, error) {
	cfg, err := awsconf.Load(ctx, conf)
	if err != nil {
		return nil, err
	}
	return &Client{
		api:   kms.NewFromConfig(cfg),
		keyID: conf.KMSKeyID,
	}, nil
}
