/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"time"
)

// zeroHash is the 64-hex-character placeholder substituted for the
// request's own hash field before the signature is computed over it.
const zeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// timestampEarlySlack and timestampLateSlack bound how far a request's
// timestamp (unix milliseconds) may drift from server time before it is
// rejected as out_of_range. A request may be up to a second stale (clock
// skew, network latency) but only a millisecond ahead.
const (
	timestampEarlySlack = 1000 * time.Millisecond
	timestampLateSlack  = 1 * time.Millisecond
)

// requireSignedRequest verifies the HMAC-SHA256 signature and timestamp
// window carried in every write request's JSON body: {..., timestamp,
// hash}. hash is computed over the canonical (sorted-key) JSON body with
// the hash field itself zeroed to 64 hex characters, keyed by the shared
// secret. A verified request has its body restored so the handler can
// decode its own fields normally.
func (a *API) requireSignedRequest() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_body")
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			var fields map[string]any
			dec := json.NewDecoder(bytes.NewReader(body))
			dec.UseNumber()
			if err := dec.Decode(&fields); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_body")
				return
			}

			providedHash, _ := fields["hash"].(string)
			fields["hash"] = zeroHash
			canonical, err := canonicalJSON(fields)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_body")
				return
			}

			mac := hmac.New(sha256.New, []byte(a.secret))
			mac.Write(canonical)
			expected := hex.EncodeToString(mac.Sum(nil))
			if !hmac.Equal([]byte(expected), []byte(providedHash)) {
				writeError(w, http.StatusUnauthorized, "invalid_hash")
				return
			}

			ts, ok := fields["timestamp"].(json.Number)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_timestamp")
				return
			}
			tsMs, err := ts.Int64()
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_timestamp")
				return
			}
			now := time.Now()
			reqTime := time.UnixMilli(tsMs)
			if reqTime.Before(now.Add(-timestampEarlySlack)) || reqTime.After(now.Add(timestampLateSlack)) {
				writeJSON(w, http.StatusForbidden, map[string]any{
					"error":       "timestamp_out_of_range",
					"server_time": now.UnixMilli(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// canonicalJSON marshals v with every object's keys sorted, so the same
// logical request always hashes to the same bytes regardless of how the
// client ordered its fields.
func canonicalJSON(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := canonicalJSON(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := canonicalJSON(e)
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return json.Marshal(val)
	}
}
