package mission

import (
    "context"
    "testing"
    "time"
)

func TestDailySettlementPaysTopNWithStableTies(t *testing.T) {
    f := newFixture(t)
    ctx := context.Background()
    for _, u := range []string{"a", "b", "c"} { f.addUser(t, u, 0) }
    ms := f.ongoing(t, 2, 40)
    f.submitAll(t, ms.ID, map[string]float64{"a": 50, "b": 80, "c": 80}, "a", "b", "c")

    rep, err := f.m.DailySettlement(ctx)
    if err != nil || rep.Settled != 0 { t.Fatalf("mission has not ended: %+v %v", rep, err) }

    f.clock.Set(ms.EndTime.Add(time.Minute))
    rep, err = f.m.DailySettlement(ctx)
    if err != nil { t.Fatalf("DailySettlement: %v", err) }
    if rep.Settled != 1 || rep.Paid != 80 { t.Fatalf("report = %+v", rep) }
    for user, want := range map[string]int64{"a": 0, "b": 40, "c": 40} {
        if got := f.balance(t, user); got != want { t.Fatalf("balance(%s) = %d, want %d", user, got, want) }
    }
    for user, want := range map[string]bool{"a": false, "b": true, "c": true} {
        p, _ := f.st.LoadParticipation(ctx, nil, ms.ID, user)
        if p.Rewarded != want { t.Fatalf("rewarded(%s) = %v", user, p.Rewarded) }
    }
    stored, _ := f.st.LoadMission(ctx, nil, ms.ID)
    if !stored.RewardsDistributed { t.Fatalf("mission not marked distributed") }
    rec, ok := f.repo.MissionSettlement(ms.ID)
    if !ok || len(rec.Winners) != 2 || rec.Winners[0] != "b" || rec.Participants != 3 { t.Fatalf("archive: %+v", rec) }

    f.disp.Wait()
    if len(f.notes.calls) != 2 || f.notes.calls[0].rank+f.notes.calls[1].rank != 3 { t.Fatalf("reward notifications: %+v", f.notes.calls) }

    rep, err = f.m.DailySettlement(ctx)
    if err != nil || rep != (SettlementReport{}) { t.Fatalf("second run must be a no-op: %+v %v", rep, err) }
    if got := f.balance(t, "b"); got != 40 { t.Fatalf("second run paid again: %d", got) }
}

func TestDailySettlementClosesMissionsWithoutWinners(t *testing.T) {
    f := newFixture(t)
    ctx := context.Background()
    empty := f.ongoing(t, 3, 10)
    noResults := f.ongoing(t, 3, 10)
    f.submitAll(t, noResults.ID, nil, "a")
    zeroTop := f.ongoing(t, 0, 10)
    f.submitAll(t, zeroTop.ID, map[string]float64{"a": 1}, "a")

    f.clock.Set(empty.EndTime.Add(time.Minute))
    rep, err := f.m.DailySettlement(ctx)
    if err != nil { t.Fatalf("DailySettlement: %v", err) }
    if rep.Settled != 3 || rep.Paid != 0 || rep.Failed != 0 { t.Fatalf("report = %+v", rep) }
    for _, id := range []int64{empty.ID, noResults.ID, zeroTop.ID} {
        ms, _ := f.st.LoadMission(ctx, nil, id)
        if !ms.RewardsDistributed { t.Fatalf("mission %d left open", id) }
    }
}

func TestDailySettlementIsolatesFailures(t *testing.T) {
    f := newFixture(t)
    ctx := context.Background()
    f.addUser(t, "ok", 0)
    broken := f.ongoing(t, 1, 10)
    f.submitAll(t, broken.ID, map[string]float64{"nobody": 1}, "nobody")
    healthy := f.ongoing(t, 1, 10)
    f.submitAll(t, healthy.ID, map[string]float64{"ok": 1}, "ok")

    f.clock.Set(broken.EndTime.Add(time.Minute))
    rep, err := f.m.DailySettlement(ctx)
    if err != nil { t.Fatalf("DailySettlement: %v", err) }
    if rep.Failed != 1 || rep.Settled != 1 { t.Fatalf("report = %+v", rep) }
    if ms, _ := f.st.LoadMission(ctx, nil, broken.ID); ms.RewardsDistributed { t.Fatalf("failed mission marked distributed") }
    if got := f.balance(t, "ok"); got != 10 { t.Fatalf("healthy mission unpaid: %d", got) }

    if _, err := f.led.Open(ctx, "nobody", 0); err != nil { t.Fatalf("Open: %v", err) }
    rep, err = f.m.DailySettlement(ctx)
    if err != nil || rep.Settled != 1 || rep.Failed != 0 { t.Fatalf("retry: %+v %v", rep, err) }
    if got := f.balance(t, "nobody"); got != 10 { t.Fatalf("retry did not pay: %d", got) }

    journal, _ := f.led.Journal(ctx, 10)
    for _, e := range journal {
        if e.Reason != reasonReward { t.Fatalf("unexpected journal entry %+v", e) }
    }
}
