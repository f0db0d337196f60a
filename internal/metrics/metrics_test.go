// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDBQuery(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("insert_message"))

	RecordDBQuery("insert_message", 3*time.Millisecond, nil)
	RecordDBQuery("insert_message", 5*time.Millisecond, errors.New("connection reset"))

	if got := testutil.ToFloat64(DBQueryErrors.WithLabelValues("insert_message")); got != before+1 {
		t.Errorf("DBQueryErrors = %v, want %v", got, before+1)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/health/live", "200"))

	RecordAPIRequest("GET", "/api/v1/health/live", "200", time.Millisecond)

	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/health/live", "200")); got != before+1 {
		t.Errorf("APIRequestsTotal = %v, want %v", got, before+1)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)

	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("after inc = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("after dec = %v, want %v", got, before)
	}
}

func TestRecordEmail(t *testing.T) {
	okBefore := testutil.ToFloat64(EmailsSent.WithLabelValues("password_reset", "success"))
	failBefore := testutil.ToFloat64(EmailsSent.WithLabelValues("password_reset", "failure"))

	RecordEmail("password_reset", nil)
	RecordEmail("password_reset", errors.New("dial tcp: timeout"))

	if got := testutil.ToFloat64(EmailsSent.WithLabelValues("password_reset", "success")); got != okBefore+1 {
		t.Errorf("success = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(EmailsSent.WithLabelValues("password_reset", "failure")); got != failBefore+1 {
		t.Errorf("failure = %v, want %v", got, failBefore+1)
	}
}

func TestRecordNotificationProcessed(t *testing.T) {
	before := testutil.ToFloat64(NotificationsProcessed.WithLabelValues("notification.created", "dead_letter"))

	RecordNotificationProcessed("notification.created", "dead_letter", 2*time.Millisecond)

	if got := testutil.ToFloat64(NotificationsProcessed.WithLabelValues("notification.created", "dead_letter")); got != before+1 {
		t.Errorf("NotificationsProcessed = %v, want %v", got, before+1)
	}
}
