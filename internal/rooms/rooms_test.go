package rooms

import "testing"

func TestRoomNameFormats(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"lesson", LessonRoom(1, 2), "1:2"},
		{"personal", PersonalRoom(1, 2, 3), "1:2:3:self"},
		{"subs", SubsRoom(1, 2, 3), "1:2:3"},
		{"monitor", MonitorRoom(1, 2), "admin:monitor:1:2"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if c.got != c.want {
				t.Errorf("got %q, want %q", c.got, c.want)
			}
		})
	}
}

func TestSubsRoomDoesNotCollideWithPersonalRoom(t *testing.T) {
	if SubsRoom(1, 2, 3) == PersonalRoom(1, 2, 3) {
		t.Fatal("SUBS_PTC and PERSONAL_PTC room names must not collide for the same participant")
	}
}
