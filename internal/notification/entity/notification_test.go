package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeAgo(t *testing.T) {
	created := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	n := &Notification{CreatedAt: created}
	cases := map[time.Duration]string{
		30 * time.Second:          "Just now",
		5 * time.Minute:           "5m ago",
		3*time.Hour + time.Minute: "3h ago",
		50 * time.Hour:            "2d ago",
		8 * 24 * time.Hour:        "Jul 01",
	}
	for age, want := range cases {
		require.Equal(t, want, n.TimeAgo(created.Add(age)), age.String())
	}
}

func TestIsKind(t *testing.T) {
	require.True(t, IsKind(KindSuccess))
	require.False(t, IsKind("info"))
}
