package main

import (
	"testing"
)

func TestOnceRejectsUnknownJob(t *testing.T) {
	rootCmd.SetArgs([]string{"once", "vacuum"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestOnceRequiresJob(t *testing.T) {
	rootCmd.SetArgs([]string{"once"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error without a job argument")
	}
}

func TestJobList(t *testing.T) {
	got := jobList()
	if len(got) != 4 || got[0] != "queue" || got[3] != "expiry" {
		t.Fatalf("unexpected jobs %v", got)
	}
}
