package urlkey

import "testing"

func TestSponsorFilterDropsAffiliateForms(t *testing.T) {
	f := NewSponsorFilter()
	sponsored := []string{
		"https://brilliant.org/ref=xyz",
		"https://example.com/deal?affiliate=123",
		"https://example.com/post?utm_source=newsletter",
		"https://bit.ly/3xYzAbC",
		"https://amzn.to/3xYzAbC",
		"https://geni.us/gadget",
		"https://tinyurl.com/abc",
		"https://example.com/review#ad",
		"https://shop.example.skimlinks.com/x",
	}
	for _, u := range sponsored {
		if !f.IsSponsored(u, "check out this link") {
			t.Fatalf("expected %q to be sponsored", u)
		}
	}
}

func TestSponsorFilterKeepsOrganicLinks(t *testing.T) {
	f := NewSponsorFilter()
	organic := []string{
		"https://github.com/golang/go",
		"https://arxiv.org/abs/1706.03762",
		"https://blog.example.com/post",
	}
	for _, u := range organic {
		if f.IsSponsored(u, "some article text") {
			t.Fatalf("expected %q to be organic", u)
		}
	}
}

func TestSponsorFilterAmazonNeedsAWSContext(t *testing.T) {
	f := NewSponsorFilter()
	if f.IsSponsored("https://aws.amazon.com/s3/", "we store backups in aws s3 buckets") {
		t.Fatalf("aws url with aws context should pass")
	}
	// the url itself carries aws context
	if f.IsSponsored("https://aws.amazon.com/s3/", "") {
		t.Fatalf("aws product url should pass on its own text")
	}
	if !f.IsSponsored("https://amazon.com/dp/B08N5WRWNW", "best usb microphone i use daily") {
		t.Fatalf("product link without aws context should be sponsored")
	}
}
