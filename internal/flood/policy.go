package flood

import (
	"fmt"
	"strings"

	"github.com/MeKo-Tech/marisma/internal/raster"
)

// InvalidPolicy decides what happens to provisional code 2 in the written mask.
type InvalidPolicy string

const (
	// InvalidAsNoData collapses code 2 into nodata so the output holds {0, 1, -9999}.
	InvalidAsNoData InvalidPolicy = "nodata"
	// InvalidKeep writes code 2 as-is.
	InvalidKeep InvalidPolicy = "keep"
)

// ParseInvalidPolicy accepts "nodata" or "keep"; empty means nodata.
func ParseInvalidPolicy(s string) (InvalidPolicy, error) {
	switch InvalidPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", InvalidAsNoData:
		return InvalidAsNoData, nil
	case InvalidKeep:
		return InvalidKeep, nil
	}
	return "", fmt.Errorf("invalid_policy must be %q or %q, got %q", InvalidAsNoData, InvalidKeep, s)
}

// Finalize returns a copy of the mask with code 2 resolved by the policy.
func Finalize(m *raster.Mask, p InvalidPolicy) *raster.Mask {
	out := &raster.Mask{Grid: m.Grid, Data: make([]int16, len(m.Data))}
	copy(out.Data, m.Data)
	if p == InvalidKeep {
		return out
	}
	for i, v := range out.Data {
		if v == Invalid {
			out.Data[i] = NoData
		}
	}
	return out
}
