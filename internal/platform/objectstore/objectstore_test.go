package objectstore

import "testing"

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Endpoint:      "localhost:9000",
		AccessKey:     "floortrack",
		SecretKey:     "floortrackminio",
		Region:        "us-east-1",
		BucketExports: "run-exports",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(Config) Config{
		"missing endpoint": func(c Config) Config { c.Endpoint = ""; return c },
		"scheme endpoint":  func(c Config) Config { c.Endpoint = "http://localhost:9000"; return c },
		"missing access":   func(c Config) Config { c.AccessKey = ""; return c },
		"missing secret":   func(c Config) Config { c.SecretKey = ""; return c },
		"missing region":   func(c Config) Config { c.Region = ""; return c },
		"missing bucket":   func(c Config) Config { c.BucketExports = ""; return c },
	}
	for name, mutate := range cases {
		if err := mutate(valid).Validate(); err == nil {
			t.Fatalf("expected %s to be rejected", name)
		}
	}
}
