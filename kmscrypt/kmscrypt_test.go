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
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var blobPrefix = []byte("blob:")

type fakeKMS struct {
	lastKeyID string
}

func (f *fakeKMS) Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	f.lastKeyID = *params.KeyId
	return &kms.EncryptOutput{CiphertextBlob: append(append([]byte{}, blobPrefix...), params.Plaintext...)}, nil
}

func (f *fakeKMS) Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if !bytes.HasPrefix(params.CiphertextBlob, blobPrefix) {
		return nil, fmt.Errorf("InvalidCiphertextException")
	}
	return &kms.DecryptOutput{Plaintext: params.CiphertextBlob[len(blobPrefix):]}, nil
}

func TestEncryptDecrypt(t *testing.T) {
	api := &fakeKMS{}
	client := &Client{api: api, keyID: "alias/zipfinder"}
	blob, err := client.Encrypt(context.Background(), "secret-password")
	require.NoError(t, err)
	assert.Equal(t, "alias/zipfinder", api.lastKeyID)
	text, err := client.Decrypt(context.Background(), blob)
	assert.NoError(t, err)
	assert.Equal(t, "secret-password", text)

	_, err = client.Decrypt(context.Background(), []byte("garbage"))
	assert.Error(t, err)
}

func TestEncryptWithoutKey(t *testing.T) {
	client := &Client{api: &fakeKMS{}}
	_, err := client.Encrypt(context.Background(), "secret")
	assert.ErrorIs(t, err, ErrMissingKeyID)
}
