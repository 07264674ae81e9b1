/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package job

const emailTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
</head>
<body style="margin:0;padding:0;background-color:#f7fafc;font-family:Arial,Helvetica,sans-serif;">
  <table role="presentation" width="100%" cellpadding="0" cellspacing="0">
    <tr>
      <td align="center" style="padding:24px;">
        <table role="presentation" width="600" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;border:1px solid #e2e8f0;">
          <tr>
            <td style="padding:24px;border-bottom:1px solid #e2e8f0;">
              <h2 style="margin:0;color:#1a202c;">Collection Job {{.JobId}}</h2>
              <p style="margin:8px 0 0 0;">
                <span style="display:inline-block;padding:4px 12px;border-radius:12px;background-color:{{.StatusColor}};color:#ffffff;font-size:13px;">{{.Status}}</span>
              </p>
            </td>
          </tr>
          <tr>
            <td style="padding:24px;">
              <table role="presentation" width="100%" cellpadding="6" cellspacing="0" style="font-size:14px;color:#2d3748;">
                <tr><td style="color:#718096;">Custodian</td><td>{{.Custodian}}</td></tr>
                <tr><td style="color:#718096;">Job type</td><td>{{.JobType}}</td></tr>
                <tr><td style="color:#718096;">Items collected</td><td>{{.Items}}</td></tr>
                <tr><td style="color:#718096;">Bytes collected</td><td>{{.Bytes}}</td></tr>
                <tr><td style="color:#718096;">Finished</td><td>{{.FinishedTime}} UTC</td></tr>
              </table>
              {{if .ErrorMessage}}
              <div style="margin-top:16px;padding:12px;background-color:#fff5f5;border:1px solid #fc8181;border-radius:6px;color:#c53030;font-size:13px;">
                {{.ErrorMessage}}
              </div>
              {{end}}
            </td>
          </tr>
          <tr>
            <td style="padding:16px 24px;border-top:1px solid #e2e8f0;color:#a0aec0;font-size:12px;">
              This message was generated automatically by the collection orchestrator.
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`
