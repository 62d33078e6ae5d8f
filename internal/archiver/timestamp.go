package archiver

import (
	"errors"
	"regexp"
	"time"
)

// TimestampLayout is the service's fixed-width YYYYMMDDHHMMSS format.
const TimestampLayout = "20060102150405"

const timestampWidth = len(TimestampLayout)

var snapshotPathTimestamp = regexp.MustCompile(`/web/(\d+)/`)

// ParseTimestamp decodes a 14-digit snapshot timestamp as a UTC instant.
func ParseTimestamp(text string) (time.Time, error) {
	if len(text) != timestampWidth {
		return time.Time{}, NewError(KindMalformedTimestamp, "", "expected %d digits, got %q", timestampWidth, text)
	}
	for i := 0; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return time.Time{}, NewError(KindMalformedTimestamp, "", "non-digit in %q", text)
		}
	}
	// Out-of-range fields (month 13, Feb 30, hour 24) fail here.
	t, err := time.ParseInLocation(TimestampLayout, text, time.UTC)
	if err != nil {
		return time.Time{}, WrapError(KindMalformedTimestamp, "", err)
	}
	return t, nil
}

// FormatTimestamp encodes t in the service's fixed-width format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// TimestampFromSnapshotURL decodes the timestamp embedded in a /web/<ts>/<url> snapshot path.
func TimestampFromSnapshotURL(snapshotURL string) (time.Time, error) {
	m := snapshotPathTimestamp.FindStringSubmatch(snapshotURL)
	if m == nil {
		return time.Time{}, NewError(KindMalformedTimestamp, snapshotURL, "no /web/<timestamp>/ segment")
	}
	t, err := ParseTimestamp(m[1])
	if err != nil {
		var re *ResolutionError
		if errors.As(err, &re) {
			re.URL = snapshotURL
		}
		return time.Time{}, err
	}
	return t, nil
}
