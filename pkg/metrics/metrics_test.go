// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-authflow.
//
// go-authflow is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("POST", "200"))
	RecordRequest("POST", "200", 42*time.Millisecond)
	after := testutil.ToFloat64(RequestsTotal.WithLabelValues("POST", "200"))
	assert.Equal(t, before+1, after)
}

func TestRecordCeremony(t *testing.T) {
	before := testutil.ToFloat64(CeremoniesTotal.WithLabelValues(CeremonyLogin, StatusCancelled))
	RecordCeremony(CeremonyLogin, StatusCancelled)
	after := testutil.ToFloat64(CeremoniesTotal.WithLabelValues(CeremonyLogin, StatusCancelled))
	assert.Equal(t, before+1, after)
}

func TestRecordError(t *testing.T) {
	before := testutil.ToFloat64(ErrorsTotal.WithLabelValues("invalidPasscode"))
	RecordError("invalidPasscode")
	after := testutil.ToFloat64(ErrorsTotal.WithLabelValues("invalidPasscode"))
	assert.Equal(t, before+1, after)
}
