package postgres

import (
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"trip-dispatch/internal/domain/trip"
)

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// maxPlaceholder returns the highest $N referenced in the query.
func maxPlaceholder(query string) int {
	max := 0
	for _, m := range placeholderRe.FindAllStringSubmatch(query, -1) {
		n, _ := strconv.Atoi(m[1])
		if n > max {
			max = n
		}
	}
	return max
}

func TestAdvanceUpdateBindsEveryArgument(t *testing.T) {
	at := time.Now().UTC()
	states := []trip.State{
		trip.StateAccepted,
		trip.StateEnRoutePickup,
		trip.StateArrivedPickup,
		trip.StateInProgress,
		trip.StateCompleted,
		trip.StateCancelled,
	}

	for _, st := range states {
		query, args := advanceUpdate(st, at, "trip-1")

		// an argument without a matching placeholder fails Postgres parse
		// analysis (42P18) at execution time
		if got := maxPlaceholder(query); got != len(args) {
			t.Fatalf("%s: query references up to $%d but %d args are bound", st, got, len(args))
		}
		for i := 1; i <= len(args); i++ {
			if !strings.Contains(query, "$"+strconv.Itoa(i)) {
				t.Fatalf("%s: $%d is never referenced in the query", st, i)
			}
		}
	}
}

func TestAdvanceUpdateEnRoutePickupSkipsTimestamp(t *testing.T) {
	query, args := advanceUpdate(trip.StateEnRoutePickup, time.Now().UTC(), "trip-1")

	if len(args) != 2 {
		t.Fatalf("expected state and id only, got %d args", len(args))
	}
	if args[0] != trip.StateEnRoutePickup.String() || args[1] != "trip-1" {
		t.Fatalf("wrong argument order: %v", args)
	}
	if strings.Contains(query, "$3") {
		t.Fatalf("query must not reference $3: %s", query)
	}
}

func TestAdvanceUpdateStampsDedicatedColumn(t *testing.T) {
	at := time.Now().UTC()
	query, args := advanceUpdate(trip.StateInProgress, at, "trip-1")

	if !strings.Contains(query, "started_at = $2") {
		t.Fatalf("started_at not stamped: %s", query)
	}
	if len(args) != 3 || args[1] != at {
		t.Fatalf("timestamp not bound: %v", args)
	}
}
