package mcpserver

// DocumentFormatContract describes the versebook document that LLM consumers
// read and extend through the tools.
const DocumentFormatContract = `# Versebook Document Format

The document is a tree of categories holding annotated scripture verses.
It is stored as one JSON file in the remote store and edited locally until
` + "`" + `save_document` + "`" + ` is called.

## Structure

` + "```" + `json
{
  "categories": [
    {
      "id": "…", "name": "Faith", "order": 0,
      "verses": [
        {
          "id": "…", "reference": "Hebrews 11:1",
          "text": "Now faith is…", "notes": "", "images": [],
          "order": 0, "created": "…", "modified": "…"
        }
      ],
      "subcategories_level1": [
        { "id": "…", "name": "Trust", "order": 0, "verses": [],
          "subcategories_level2": [] }
      ]
    }
  ],
  "lastModified": "2025-01-20T10:00:00Z"
}
` + "```" + `

## Rules

1. **Three levels at most.** Top-level categories hold level-1 subcategories,
   which hold level-2 subcategories. Level-2 categories cannot have children.
2. **Names and references are required.** Blank values are rejected.
3. **Ids are generated** by versebook. Use the ids returned by
   ` + "`" + `list_categories` + "`" + ` and ` + "`" + `add_verse` + "`" + `.
4. **References** use the book name or abbreviation, chapter and verse:
   ` + "`" + `John 3:16` + "`" + `, ` + "`" + `1 Cor 13:4-7` + "`" + `, ` + "`" + `Psalm 23` + "`" + `. Recognized references get
   a passage link in ` + "`" + `read_verse` + "`" + `.
5. **Order** is maintained by versebook; siblings are numbered 0..n-1.
6. **Saving** may be refused while a conflict with a newer remote copy is
   pending. Conflicts are resolved by a person, never by a tool.

## Images

- Upload images with ` + "`" + `upload_asset` + "`" + ` (http(s) URL or base64 data URI).
- Put the returned ` + "`" + `url` + "`" + ` in the verse's ` + "`" + `images` + "`" + ` list.
- Supported formats: png, jpg, jpeg, gif, webp, svg, pdf; at most 10 MB.
`
