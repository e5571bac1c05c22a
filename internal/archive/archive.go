/*
Copyright 2024 Meterline Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package archive

import (
	"bytes"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/meterline/meterline/config"
)

// Archiver copies completed work-item results to S3 so the hot store can be
// pruned without losing evaluation output.
type Archiver struct {
	bucket string
	client *s3.S3
}

// NewArchiver builds an Archiver from the archive section of the
// configuration. Returns nil (and no error) when archiving is disabled.
func NewArchiver() (*Archiver, error) {
	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	if !conf.Archive.Enabled {
		return nil, nil
	}
	if conf.Archive.S3BucketName == "" {
		return nil, fmt.Errorf("archive enabled but s3_bucket_name is empty")
	}

	awsConf := aws.NewConfig().
		WithRegion(conf.Archive.S3Region).
		WithCredentials(credentials.NewStaticCredentials(conf.Archive.AwsAccessKeyId, conf.Archive.AwsSecretAccessKey, ""))
	if conf.Archive.S3Endpoint != "" {
		awsConf = awsConf.WithEndpoint(conf.Archive.S3Endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(awsConf)
	if err != nil {
		return nil, err
	}

	return &Archiver{
		bucket: conf.Archive.S3BucketName,
		client: s3.New(sess),
	}, nil
}

// ArchiveResult uploads the serialized result of a completed work item. Keys
// are date-partitioned so lifecycle rules can expire old partitions.
func (a *Archiver) ArchiveResult(workItemID string, payload []byte) (string, error) {
	key := fmt.Sprintf("results/%s/%s.json", time.Now().UTC().Format("2006-01-02"), workItemID)
	_, err := a.client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", err
	}
	return key, nil
}
