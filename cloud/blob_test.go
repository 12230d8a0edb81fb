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
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestSplitBlob(t *testing.T) {
	tests := []struct {
		path, bucket, key string
	}{
		{path: "gs://cmip6/pangeo-cmip6.csv", bucket: "gs://cmip6", key: "pangeo-cmip6.csv"},
		{path: "s3://bucket/a/b/c.nc", bucket: "s3://bucket", key: "a/b/c.nc"},
		{path: "file:///tmp/data/c.nc", bucket: "file:///tmp/data", key: "c.nc"},
		{path: "file://c.nc", bucket: "file://.", key: "c.nc"},
	}
	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			bucket, key, err := SplitBlob(test.path)
			if err != nil {
				t.Fatal(err)
			}
			if bucket != test.bucket {
				t.Errorf("bucket: have %s, want %s", bucket, test.bucket)
			}
			if key != test.key {
				t.Errorf("key: have %s, want %s", key, test.key)
			}
		})
	}
}

func TestWriteRead(t *testing.T) {
	dir, err := ioutil.TempDir("", "co2diag_cloud")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	ctx := context.Background()

	t.Run("blob", func(t *testing.T) {
		path := "file://" + filepath.ToSlash(dir) + "/catalog.csv"
		want := "activity_id,source_id\nCMIP,GFDL-ESM4\n"
		if err := Write(ctx, path, []byte(want)); err != nil {
			t.Fatal(err)
		}
		b, err := ReadAll(ctx, path)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != want {
			t.Errorf("have %q, want %q", b, want)
		}
	})

	t.Run("local", func(t *testing.T) {
		path := filepath.Join(dir, "local.txt")
		if err := Write(ctx, path, []byte("mlo")); err != nil {
			t.Fatal(err)
		}
		tmp, err := Download(ctx, path)
		if err != nil {
			t.Fatal(err)
		}
		defer os.Remove(tmp)
		b, err := ioutil.ReadFile(tmp)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != "mlo" {
			t.Errorf("have %q, want %q", b, "mlo")
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := ReadAll(ctx, filepath.Join(dir, "missing.txt")); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestIsBlob(t *testing.T) {
	for path, want := range map[string]bool{
		"gs://a/b":          true,
		"s3://a/b":          true,
		"file://a":          true,
		"https://a/b":       false,
		"/home/user/co2.nc": false,
	} {
		if have := IsBlob(path); have != want {
			t.Errorf("%s: have %v, want %v", path, have, want)
		}
	}
}
