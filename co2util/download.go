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

package co2util

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/co2diag"
	"github.com/spatialmodel/co2diag/cloud"
)

// maybeDownload checks if the input is an existing file locally.
// If not, and it is a URL or blob location, it downloads the file and
// returns the path to the downloaded file. If the download fails, the
// error is logged and the given path is returned.
func maybeDownload(ctx context.Context, path string, log logrus.FieldLogger) string {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return path
	}
	if !cloud.IsHTTP(path) && !cloud.IsBlob(path) {
		return path
	}
	tmp, err := cloud.Download(ctx, path)
	if err != nil {
		log.WithField("path", path).WithError(err).Error("co2diag download failed")
		return path
	}
	log.WithFields(logrus.Fields{"path": path, "file": tmp}).Debug("co2diag downloaded file")
	return tmp
}

// writeOutput writes ds as NetCDF to path, which may be a local file or a
// blob storage location. Blob outputs are written to a temporary file
// first and then uploaded.
func writeOutput(ctx context.Context, path string, ds *co2diag.Dataset, log logrus.FieldLogger) error {
	if !cloud.IsBlob(path) {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("co2diag: creating output file: %v", err)
		}
		if err = co2diag.WriteNCF(f, ds); err != nil {
			f.Close()
			return err
		}
		log.WithField("path", path).Info("co2diag wrote output")
		return f.Close()
	}
	f, err := ioutil.TempFile("", "co2diag")
	if err != nil {
		return fmt.Errorf("co2diag: creating temporary output file: %v", err)
	}
	defer os.Remove(f.Name())
	if err = co2diag.WriteNCF(f, ds); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	b, err := ioutil.ReadFile(f.Name())
	if err != nil {
		return err
	}
	if err = cloud.Write(ctx, path, b); err != nil {
		return fmt.Errorf("co2diag: uploading output: %v", err)
	}
	log.WithField("path", path).Info("co2diag uploaded output")
	return nil
}
