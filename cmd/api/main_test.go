package main

import "testing"

func TestCorsConfig(t *testing.T) {
	wild := corsConfig([]string{"*"})
	if !wild.AllowAllOrigins || wild.AllowCredentials || len(wild.AllowOrigins) != 0 {
		t.Fatalf("wildcard config = %+v", wild)
	}
	listed := corsConfig([]string{"https://a.example"})
	if listed.AllowAllOrigins || !listed.AllowCredentials || listed.AllowOrigins[0] != "https://a.example" {
		t.Fatalf("listed config = %+v", listed)
	}
	if err := listed.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
