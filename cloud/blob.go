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

package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
)

// Open opens the object at path for reading. path may be a blob location,
// an http(s) URL, or a local file.
func Open(ctx context.Context, path string) (io.ReadCloser, error) {
	switch {
	case IsBlob(path):
		bucketName, key, err := SplitBlob(path)
		if err != nil {
			return nil, err
		}
		bucket, err := OpenBucket(ctx, bucketName)
		if err != nil {
			return nil, err
		}
		r, err := bucket.NewReader(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("cloud: reading blob %s: %v", path, err)
		}
		return r, nil
	case IsHTTP(path):
		req, err := http.NewRequest(http.MethodGet, path, nil)
		if err != nil {
			return nil, fmt.Errorf("cloud: %v", err)
		}
		resp, err := http.DefaultClient.Do(req.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("cloud: downloading %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, &StatusError{URL: path, Code: resp.StatusCode}
		}
		return resp.Body, nil
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("cloud: %v", err)
		}
		return f, nil
	}
}

// StatusError is returned when an http request fails.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cloud: downloading %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Temporary reports whether retrying the request might succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// ReadAll reads the whole object at path.
func ReadAll(ctx context.Context, path string) ([]byte, error) {
	r, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var b bytes.Buffer
	if _, err = io.Copy(&b, r); err != nil {
		return nil, fmt.Errorf("cloud: reading %s: %v", path, err)
	}
	return b.Bytes(), nil
}

// Download copies the object at path to a new temporary file and returns
// the file's name. The caller is responsible for removing the file.
func Download(ctx context.Context, path string) (string, error) {
	r, err := Open(ctx, path)
	if err != nil {
		return "", err
	}
	defer r.Close()
	w, err := ioutil.TempFile("", "co2diag")
	if err != nil {
		return "", fmt.Errorf("cloud: creating temporary download file: %v", err)
	}
	if _, err = io.Copy(w, r); err != nil {
		w.Close()
		os.Remove(w.Name())
		return "", fmt.Errorf("cloud: downloading %s: %v", path, err)
	}
	if err = w.Close(); err != nil {
		os.Remove(w.Name())
		return "", fmt.Errorf("cloud: downloading %s: %v", path, err)
	}
	return w.Name(), nil
}

// Write writes data to path, which may be a blob location or a local file.
func Write(ctx context.Context, path string, data []byte) error {
	if !IsBlob(path) {
		if err := ioutil.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("cloud: %v", err)
		}
		return nil
	}
	bucketName, key, err := SplitBlob(path)
	if err != nil {
		return err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return err
	}
	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("cloud: creating writer for blob %s: %v", path, err)
	}
	if _, err = io.Copy(w, bytes.NewBuffer(data)); err != nil {
		w.Close()
		return fmt.Errorf("cloud: copying blob %s: %v", path, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("cloud: writing blob %s: %v", path, err)
	}
	return nil
}
