// Package render turns conversation replies into chat messages.
//
// The same wording is produced in two dialects: Telegram HTML (Telegram) and
// CommonMark (Markdown), the latter converted to HTML with goldmark for Matrix
// formatted bodies (MarkdownToHTML). Keyboards are passed through as button
// rows; frontends without keyboards get a command hint in the text instead.
package render
