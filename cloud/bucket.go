/*
Copyright © 2021 the co2diag authors.
This file is part of co2diag.

co2diag is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

co2diag is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with co2diag.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package cloud reads and writes objects in blob storage buckets and
// over HTTP, for remote data catalogs and shared caches.
package cloud

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/google/go-cloud/blob"
	"github.com/google/go-cloud/blob/fileblob"
	"github.com/google/go-cloud/blob/gcsblob"
	"github.com/google/go-cloud/blob/s3blob"
	"github.com/google/go-cloud/gcp"
)

// IsBlob returns whether the given location represents a blob,
// i.e., if it starts with `gs://`, `s3://`, or `file://`.
func IsBlob(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "file://")
}

// IsHTTP returns whether the given location is an http or https URL.
func IsHTTP(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// SplitBlob splits a blob location such as "gs://bucket/dir/file.nc" into
// the bucket name ("gs://bucket") and the object key ("dir/file.nc").
// For the "file" provider, the bucket is the directory that holds the
// file: "file:///data/dir/file.nc" gives ("file:///data/dir", "file.nc").
func SplitBlob(path string) (bucket, key string, err error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", fmt.Errorf("cloud: parsing location %s: %v", path, err)
	}
	if u.Scheme == "file" {
		dir := u.Host + u.Path
		i := strings.LastIndex(dir, "/")
		if i < 0 {
			return "file://.", dir, nil
		}
		return "file://" + dir[:i], dir[i+1:], nil
	}
	return u.Scheme + "://" + u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name' where provider
// is the name of the storage provider and name is the name of the bucket.
// The currently accepted storage providers are "file" for the local filesystem
// (e.g., for testing), "gs" for Google Cloud Storage, and "s3" for AWS S3.
// For the "file" provider, name is a directory, which may be absolute
// ("file:///tmp/cache") or relative ("file://cache").
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("cloud.OpenBucket: %v", err)
	}
	switch u.Scheme {
	case "file":
		dir := u.Host + u.Path
		if dir == "" {
			dir = "."
		}
		return fileblob.NewBucket(dir)
	case "gs":
		return gsBucket(ctx, u.Hostname())
	case "s3":
		return s3Bucket(ctx, u.Hostname())
	default:
		return nil, fmt.Errorf("cloud.OpenBucket: invalid provider %s", u.Scheme)
	}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	// See here for information on credentials:
	// https://cloud.google.com/docs/authentication/getting-started
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, name, c)
}

// s3Bucket opens an s3 storage bucket. It assumes the following
// environment variables are set: AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, fmt.Errorf("cloud: creating aws session: %v", err)
	}
	return s3blob.OpenBucket(ctx, s, name)
}
