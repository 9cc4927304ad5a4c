package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"carecal/pkg/config"
	apperrors "carecal/pkg/errors"
)

const dateLayout = "2006-01-02"

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64
	if s := query.Get("offset"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = v
	}

	return config.NormalizePaginationLimit(limit), config.NormalizeOffset(offset), nil
}

// ExtractDateRange reads the from/to query parameters as YYYY-MM-DD dates.
// Missing bounds default to today and today+defaultDays.
func ExtractDateRange(r *http.Request, now time.Time, defaultDays int) (string, string, error) {
	query := r.URL.Query()

	from := query.Get("from")
	if from == "" {
		from = now.Format(dateLayout)
	}
	fromDate, err := time.Parse(dateLayout, from)
	if err != nil {
		return "", "", apperrors.InvalidInput("invalid from parameter, expected YYYY-MM-DD: " + from)
	}

	to := query.Get("to")
	if to == "" {
		to = fromDate.AddDate(0, 0, defaultDays).Format(dateLayout)
	}
	toDate, err := time.Parse(dateLayout, to)
	if err != nil {
		return "", "", apperrors.InvalidInput("invalid to parameter, expected YYYY-MM-DD: " + to)
	}

	if toDate.Before(fromDate) {
		return "", "", apperrors.InvalidInput("to must not be before from")
	}

	return from, to, nil
}

// ExtractList splits a comma separated query parameter, dropping empty items.
func ExtractList(r *http.Request, key string) []string {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
// An empty body leaves dst untouched when allowEmpty is set.
func DecodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	if r.Body == nil || r.ContentLength == 0 {
		if allowEmpty {
			return nil
		}
		return apperrors.InvalidInput("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.InvalidInput("invalid JSON body: " + err.Error())
	}
	return nil
}
