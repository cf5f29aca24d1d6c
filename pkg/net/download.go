package net

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// maxDownloadBytes caps remote model artifacts.
const maxDownloadBytes = 256 << 20

var ErrorURLNotFound = errors.New("URL not found")

func getResp(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP Get request: %w", err)
	}

	req.Header.Set("User-Agent", clientAgent)

	return GetHTTPClient().Do(req) //nolint:gosec // URL comes from operator config
}

// Download saves the content of url to path. The file is written next to
// path and renamed into place only after a complete download.
func Download(url string, path string) (retErr error) {
	resp, err := getResp(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrorURLNotFound
	}

	if resp.StatusCode != http.StatusOK {
		PrintHTTPResponse(resp)
		return fmt.Errorf("error downloading file (status: %d - %s): %s", resp.StatusCode, resp.Status, url)
	}

	out, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmp := out.Name()
	defer func() {
		if retErr != nil {
			os.Remove(tmp)
		}
	}()

	n, err := io.Copy(out, io.LimitReader(resp.Body, maxDownloadBytes+1))
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("error saving downloaded content to file: %w", err)
	}
	if n > maxDownloadBytes {
		return fmt.Errorf("download exceeds %d bytes: %s", maxDownloadBytes, url)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("moving download into place: %w", err)
	}
	return nil
}
