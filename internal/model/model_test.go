package model

import "testing"

func TestStationRatios(t *testing.T) {
	s := Station{WasEmptyTicks: 1, WasFullTicks: 1, HealthyTicks: 2, AvailabilitySum: 200}
	if s.EmptyRatio() != 0.25 || s.FullRatio() != 0.25 || s.AvgAvailability() != 50 {
		t.Errorf("unexpected ratios %.2f %.2f %.2f", s.EmptyRatio(), s.FullRatio(), s.AvgAvailability())
	}
	var fresh Station
	if fresh.EmptyRatio() != 0 || fresh.AvgAvailability() != 0 {
		t.Error("unsampled station should report zero ratios")
	}
}

func TestBand(t *testing.T) {
	for count, want := range map[int]string{0: "red", 1: "orange", 15: "orange", 16: "green", 30: "green", 31: "blue"} {
		if got := Band(count); got != want {
			t.Errorf("Band(%d) = %s, want %s", count, got, want)
		}
	}
}

func TestAction_Partner(t *testing.T) {
	if ActionNone.Partner() != -1 || ActionSend3.Partner() != 2 || ActionRequest1.Partner() != 0 {
		t.Error("unexpected partner indices")
	}
	if !ActionSend2.IsSend() || ActionSend2.IsRequest() || !ActionRequest3.IsRequest() {
		t.Error("unexpected action kinds")
	}
	if Action(9).String() != "invalid" {
		t.Error("out-of-range action should print as invalid")
	}
}

func TestObservation_Vector(t *testing.T) {
	v := Observation{BikeCount: 4, Hour: 12, PreviousAction: ActionRequest2}.Vector()
	if len(v) != StateDim || v[0] != 4 || v[6] != 12 || v[7] != 1 {
		t.Errorf("unexpected vector %v", v)
	}
}
