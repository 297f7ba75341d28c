package mcpserver

// NoteFormatContract describes the markdown conventions gitnotes reads
// metadata from. LLM consumers should follow it when writing notes.
const NoteFormatContract = `# gitnotes Note Format

Notes are plain markdown files. Nothing is required, but these conventions
drive headings, tags, pinning and the todo list.

## Heading

The first line starting with ` + "`#`" + ` is the note's heading. Without one the
filename is shown instead.

## Tags

The last non-blank line may list tags between colons:

` + "```" + `
:work:project-x:pinned:
` + "```" + `

The line must start and end with ` + "`:`" + `. The tag ` + "`pinned`" + ` keeps the note
on the home page.

## Todos

` + "```" + `
- TODO[] 2026-01-10 Call the bank
- TODO[x] 2026-01-08 Already done
` + "```" + `

- The date is ` + "`YYYY-MM-DD`" + `. An unreadable date is still listed, as overdue.
- Anything other than whitespace inside the brackets marks the item done.
- Indentation with spaces or tabs is fine.

## Filenames

New notes are named after their creation time (` + "`2006-01-02_15:04:05`" + `) and
stored under ` + "`new/`" + `. Filenames are unique across the whole tree.
`
