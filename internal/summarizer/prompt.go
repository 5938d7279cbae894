package summarizer

const listInstructions = `Summarize each post from this Facebook group. For each post, provide exactly ONE line in this format:

**Author** (Time) - One sentence summary of the post content.

Keep each summary to a single, concise sentence that captures the main point of the post.
Output the summaries as a markdown list, one post per line, in the order the posts are given.`

const overviewInstructions = `You are summarizing recent posts from a Facebook group. Create a concise, scannable summary that highlights:
- Key topics and themes being discussed
- Important announcements or events
- Notable questions or requests from members
- Any trending or highly-engaged discussions

Provide a well-organized summary in markdown format. Use headers and bullet points for readability. Keep it concise but informative.`

// instructions returns the standing instructions for a digest style.
func instructions(style Style) string {
	if style == StyleOverview {
		return overviewInstructions
	}
	return listInstructions
}

// userPrompt folds the instructions and the posts into one user turn for
// backends that take everything in a single message.
func userPrompt(style Style, postsText string) string {
	return instructions(style) + "\n\nHere are the posts:\n\n" + postsText
}
