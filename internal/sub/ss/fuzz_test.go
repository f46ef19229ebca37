package ss

import "testing"

func FuzzParseSubscriptionText(f *testing.F) {
	seed := []string{
		"",
		"   \n",
		"# comment\nss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388#Node%201\n",
		"ss://YWVzLTEyOC1nY206cGFzc3dvcmQ=@example.com:8388#A\n",
		"ss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388/?plugin=simple-obfs%3Bobfs%3Dtls%3Bobfs-host%3Dexample.com#obfs\n",
		"ss://YWVzLTEyOC1nY206cGFzcw==@[::1]:8388#ipv6\n",
		"ss://2022-blake3-aes-128-gcm:c2VjcmV0@example.com:443\n",
	}
	for _, s := range seed {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, content string) {
		nodes, _, err := ParseSubscriptionText("https://example.com/sub", content)
		if err != nil {
			return
		}
		for _, n := range nodes {
			if n.Type != "shadowsocks" {
				t.Fatalf("unexpected node type: %q", n.Type)
			}
			if n.Tag == "" {
				t.Fatalf("empty tag")
			}
			if n.Server == "" {
				t.Fatalf("empty server")
			}
			if n.Port < 1 || n.Port > 65535 {
				t.Fatalf("port out of range: %d", n.Port)
			}
			if n.Config["method"] == "" || n.Config["password"] == "" {
				t.Fatalf("empty method or password: %v", n.Config)
			}
		}
	})
}
