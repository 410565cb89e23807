package objectclient

import (
	"net/url"
	"strings"
)

// Location is a bucket and key pair. Bucket may be empty for s3:///key style
// references that rely on the configured default bucket.
type Location struct {
	Bucket string
	Key    string
}

// ParseLocation recognises s3://bucket/key, virtual-hosted
// https://bucket.s3.<region>.amazonaws.com/key and path-style
// https://s3.<region>.amazonaws.com/bucket/key URLs.
func ParseLocation(raw string) (Location, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, false
	}
	key := strings.TrimPrefix(u.Path, "/")

	switch u.Scheme {
	case "s3":
		return Location{Bucket: u.Host, Key: key}, true
	case "https", "http":
		host := u.Hostname()
		if !strings.HasSuffix(host, ".amazonaws.com") {
			return Location{}, false
		}
		if strings.HasPrefix(host, "s3.") || strings.HasPrefix(host, "s3-") {
			bucket, rest, _ := strings.Cut(key, "/")
			return Location{Bucket: bucket, Key: rest}, true
		}
		bucket, _, ok := strings.Cut(host, ".s3")
		if !ok {
			return Location{}, false
		}
		return Location{Bucket: bucket, Key: key}, true
	}
	return Location{}, false
}
