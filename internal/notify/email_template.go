package notify

const emailHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>TerpAlert for {{.Date.Format "Mon Jan 2"}}</title>
  <style>
    body {
      margin: 0;
      padding: 24px;
      background-color: #f3f4f6;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      color: #111827;
      line-height: 1.5;
    }

    .container {
      max-width: 640px;
      margin: 0 auto;
      background: #ffffff;
      border-radius: 8px;
      border: 1px solid #e5e7eb;
      overflow: hidden;
    }

    .header {
      padding: 20px 24px;
      background: linear-gradient(135deg, #e21833 0%, #a50f24 100%);
      color: #ffffff;
    }

    .brand {
      font-size: 24px;
      font-weight: 700;
      letter-spacing: 0.05em;
      margin-bottom: 4px;
    }

    .date {
      font-size: 15px;
      opacity: 0.9;
    }

    .section {
      padding: 16px 24px;
      border-top: 1px solid #f3f4f6;
    }

    .section-title {
      font-size: 11px;
      font-weight: 700;
      color: #6b7280;
      text-transform: uppercase;
      letter-spacing: 0.1em;
      margin-bottom: 12px;
    }

    .alert-list,
    .highlight-list {
      margin: 0;
      padding-left: 20px;
      font-size: 14px;
    }

    .alert-list li,
    .highlight-list li {
      margin-bottom: 8px;
      padding-left: 4px;
    }

    .summary-box {
      background: #fffbeb;
      border-left: 3px solid #ffd200;
      padding: 12px 16px;
      font-size: 13px;
      color: #374151;
      border-radius: 0 4px 4px 0;
      margin-bottom: 12px;
    }

    .footer {
      padding: 16px 24px;
      font-size: 12px;
      color: #9ca3af;
      text-align: center;
      background: #f9fafb;
      border-top: 1px solid #f3f4f6;
    }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <div class="brand">TerpAlert</div>
      <div class="date">{{.Date.Format "Monday, January 2, 2006"}}</div>
    </div>

    <div class="section">
      <div class="section-title">On the menu today</div>
      <ul class="alert-list">
        {{range .Alerts}}
        <li>{{.}}</li>
        {{end}}
      </ul>
    </div>

    {{with .Digest}}
    <div class="section">
      <div class="section-title">Today's digest</div>
      {{if .Summary}}
      <div class="summary-box">{{.Summary}}</div>
      {{end}}
      {{if .Highlights}}
      <ul class="highlight-list">
        {{range .Highlights}}
        <li>{{.}}</li>
        {{end}}
      </ul>
      {{end}}
    </div>
    {{end}}

    <div class="footer">
      You are receiving this because you set alerts for these items. Turn off email notifications on your account page.
    </div>
  </div>
</body>
</html>`
