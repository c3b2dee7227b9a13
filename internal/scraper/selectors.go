package scraper

import "strings"

// X.com DOM selectors. X changes its markup often; when scraping breaks,
// start here.
const (
	FeedContainer = `[data-testid="primaryColumn"]`
	TweetArticle  = `article[data-testid="tweet"]`

	TweetText   = `[data-testid="tweetText"]`
	TweetAuthor = `[data-testid="User-Name"]`
	TweetLink   = `a[href*="/status/"]`

	ReplyCount   = `[data-testid="reply"]`
	RetweetCount = `[data-testid="retweet"]`
	LikeCount    = `[data-testid="like"]`

	// Present on reposts ("X reposted")
	SocialContext = `[data-testid="socialContext"]`
)

// WaitForFeed is visible once the home timeline has rendered
const WaitForFeed = FeedContainer

// extractJS reads every rendered tweet into rawPost-shaped objects
var extractJS = strings.NewReplacer(
	"{{ARTICLE}}", TweetArticle,
	"{{LINK}}", TweetLink,
	"{{AUTHOR}}", TweetAuthor,
	"{{TEXT}}", TweetText,
	"{{SOCIAL}}", SocialContext,
	"{{REPLY}}", ReplyCount,
	"{{RETWEET}}", RetweetCount,
	"{{LIKE}}", LikeCount,
).Replace(`
(function() {
	const results = [];
	document.querySelectorAll('{{ARTICLE}}').forEach(el => {
		try {
			const statusLink = el.querySelector('{{LINK}}');
			const id = statusLink?.href?.match(/status\/(\d+)/)?.[1];
			if (!id) return;

			let authorHandle = '';
			let authorName = '';
			const userNameEl = el.querySelector('{{AUTHOR}}');
			if (userNameEl) {
				const handleLink = userNameEl.querySelector('a[href^="/"]');
				authorHandle = handleLink?.getAttribute('href')?.replace('/', '') || '';
				authorName = userNameEl.querySelector('span')?.textContent || '';
			}

			const metric = (sel) => {
				const m = el.querySelector(sel);
				if (!m) return '0';
				const label = m.getAttribute('aria-label');
				if (label) {
					const match = label.match(/^([\d,.]+[KkMm]?)/);
					return match ? match[1] : '0';
				}
				return m.textContent?.trim() || '0';
			};

			const social = el.querySelector('{{SOCIAL}}')?.textContent?.toLowerCase() || '';

			results.push({
				id,
				authorHandle,
				authorName,
				content: el.querySelector('{{TEXT}}')?.innerText || '',
				timestamp: el.querySelector('time')?.getAttribute('datetime') || '',
				likes: metric('{{LIKE}}'),
				retweets: metric('{{RETWEET}}'),
				replies: metric('{{REPLY}}'),
				isRepost: social.includes('repost') || social.includes('retweeted'),
				url: statusLink?.href || ''
			});
		} catch (e) {
			console.error('Error extracting tweet:', e);
		}
	});
	return results;
})()
`)
